package httpapi

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/openmuni/grievance-core/internal/app/system"
	"github.com/openmuni/grievance-core/pkg/version"
)

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	SystemMemUsed float64 `json:"system_mem_used_pct,omitempty"`
}

// health reports process liveness plus resource usage via gopsutil. Resource
// figures are best-effort: a gopsutil failure never turns a healthy process
// unhealthy, it just omits the field.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.StartedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			resp.RSSBytes = info.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		resp.SystemMemUsed = vm.UsedPercent
	}

	writeJSON(w, http.StatusOK, resp)
}

type versionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func (h *Handler) systemVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{
		Version:   version.Version,
		GitCommit: version.GitCommit,
		BuildTime: version.BuildTime,
		GoVersion: version.GoVersion,
	})
}

// systemServices reports the architectural placement of the lifecycle-managed
// components wired into this handler, so an operator can see at a glance
// which domain/layer each one occupies without reading the source.
func (h *Handler) systemServices(w http.ResponseWriter, r *http.Request) {
	providers := []system.DescriptorProvider{h.Engine, h.Resolution}
	if h.Intake != nil {
		providers = append(providers, h.Intake)
	}
	writeJSON(w, http.StatusOK, system.CollectDescriptors(providers))
}
