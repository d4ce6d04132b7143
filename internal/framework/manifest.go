package framework

import (
	"sort"
	"strings"

	core "github.com/openmuni/grievance-core/internal/app/core/service"
)

// Manifest describes a service's identity, placement, and dependencies so the
// application wiring and the system descriptor endpoint can reason about it
// without importing the service package directly.
type Manifest struct {
	Name         string
	Domain       string
	Description  string
	Version      string
	Layer        string
	DependsOn    []string
	RequiresAPIs []string
	Capabilities []string
	Quotas       map[string]string
	Tags         map[string]string
	enabled      *bool
}

// Normalize trims whitespace, lower-cases the layer, and de-duplicates lists
// and maps in place. Safe to call on a nil manifest.
func (m *Manifest) Normalize() {
	if m == nil {
		return
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Domain = strings.TrimSpace(m.Domain)
	m.Description = strings.TrimSpace(m.Description)
	m.Version = strings.TrimSpace(m.Version)
	m.Layer = strings.ToLower(strings.TrimSpace(m.Layer))

	m.RequiresAPIs = dedupe(m.RequiresAPIs)
	m.DependsOn = dedupe(m.DependsOn)
	m.Capabilities = dedupe(m.Capabilities)
	m.Quotas = cleanMap(m.Quotas)
	m.Tags = cleanMap(m.Tags)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cleanMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Validate checks required fields. A nil manifest is considered valid (there
// is nothing to validate).
func (m *Manifest) Validate() error {
	if m == nil {
		return nil
	}
	if m.Name == "" {
		return NewConfigError("name", "manifest name is required")
	}
	return nil
}

// ValidateWith runs a custom ManifestValidator against this manifest.
func (m *Manifest) ValidateWith(v ManifestValidator) error {
	if v == nil {
		return nil
	}
	return v.ValidateManifest(m)
}

// ManifestValidator validates a manifest beyond the built-in checks.
type ManifestValidator interface {
	ValidateManifest(m *Manifest) error
}

// ManifestValidatorFunc adapts a function to ManifestValidator.
type ManifestValidatorFunc func(m *Manifest) error

// ValidateManifest implements ManifestValidator.
func (f ManifestValidatorFunc) ValidateManifest(m *Manifest) error { return f(m) }

// IsEnabled reports whether the service is enabled. Defaults to true.
func (m *Manifest) IsEnabled() bool {
	if m == nil || m.enabled == nil {
		return true
	}
	return *m.enabled
}

// SetEnabled sets the enabled flag.
func (m *Manifest) SetEnabled(enabled bool) {
	if m == nil {
		return
	}
	m.enabled = &enabled
}

// HasCapability reports whether the manifest lists the given capability
// (case-insensitive).
func (m *Manifest) HasCapability(cap string) bool {
	if m == nil {
		return false
	}
	return containsFold(m.Capabilities, cap)
}

// RequiresAPI reports whether the manifest requires the given API surface.
func (m *Manifest) RequiresAPI(api string) bool {
	if m == nil {
		return false
	}
	return containsFold(m.RequiresAPIs, api)
}

// DependsOnService reports whether the manifest depends on the given service.
func (m *Manifest) DependsOnService(name string) bool {
	if m == nil {
		return false
	}
	return containsFold(m.DependsOn, name)
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// HasTag reports whether the manifest carries the given tag key.
func (m *Manifest) HasTag(key string) bool {
	_, ok := m.GetTag(key)
	return ok
}

// GetTag returns the tag value for key.
func (m *Manifest) GetTag(key string) (string, bool) {
	if m == nil || m.Tags == nil {
		return "", false
	}
	v, ok := m.Tags[key]
	return v, ok
}

// SetTag sets a tag key/value pair.
func (m *Manifest) SetTag(key, value string) {
	if m == nil {
		return
	}
	if m.Tags == nil {
		m.Tags = map[string]string{}
	}
	m.Tags[key] = value
}

// GetQuota returns the quota value for key.
func (m *Manifest) GetQuota(key string) (string, bool) {
	if m == nil || m.Quotas == nil {
		return "", false
	}
	v, ok := m.Quotas[key]
	return v, ok
}

// SetQuota sets a quota key/value pair.
func (m *Manifest) SetQuota(key, value string) {
	if m == nil {
		return
	}
	if m.Quotas == nil {
		m.Quotas = map[string]string{}
	}
	m.Quotas[key] = value
}

// Clone returns a deep copy. Returns nil for a nil receiver.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	clone := *m
	clone.DependsOn = append([]string(nil), m.DependsOn...)
	clone.RequiresAPIs = append([]string(nil), m.RequiresAPIs...)
	clone.Capabilities = append([]string(nil), m.Capabilities...)
	if m.Quotas != nil {
		clone.Quotas = make(map[string]string, len(m.Quotas))
		for k, v := range m.Quotas {
			clone.Quotas[k] = v
		}
	}
	if m.Tags != nil {
		clone.Tags = make(map[string]string, len(m.Tags))
		for k, v := range m.Tags {
			clone.Tags[k] = v
		}
	}
	if m.enabled != nil {
		enabled := *m.enabled
		clone.enabled = &enabled
	}
	return &clone
}

// Merge overlays non-empty fields of other onto m, combining list and map
// fields rather than replacing them.
func (m *Manifest) Merge(other *Manifest) {
	if m == nil || other == nil {
		return
	}
	if other.Name != "" {
		m.Name = other.Name
	}
	if other.Domain != "" {
		m.Domain = other.Domain
	}
	if other.Description != "" {
		m.Description = other.Description
	}
	if other.Version != "" {
		m.Version = other.Version
	}
	if other.Layer != "" {
		m.Layer = other.Layer
	}
	m.DependsOn = append(m.DependsOn, other.DependsOn...)
	m.RequiresAPIs = append(m.RequiresAPIs, other.RequiresAPIs...)
	m.Capabilities = append(m.Capabilities, other.Capabilities...)
	for k, v := range other.Quotas {
		m.SetQuota(k, v)
	}
	for k, v := range other.Tags {
		m.SetTag(k, v)
	}
	if other.enabled != nil {
		m.enabled = other.enabled
	}
}

var layerByName = map[string]core.Layer{
	"ingress":  core.LayerIngress,
	"adapter":  core.LayerAdapter,
	"engine":   core.LayerEngine,
	"data":     core.LayerData,
	"security": core.LayerSecurity,
}

// ToDescriptor projects the manifest into a core.Descriptor for the system
// status/descriptor endpoints. Unknown layers default to LayerEngine.
func (m *Manifest) ToDescriptor() core.Descriptor {
	if m == nil {
		return core.Descriptor{}
	}
	layer, ok := layerByName[m.Layer]
	if !ok {
		layer = core.LayerEngine
	}
	return core.Descriptor{
		Name:         m.Name,
		Domain:       m.Domain,
		Layer:        layer,
		Capabilities: append([]string(nil), m.Capabilities...),
	}
}

// ManifestFromDescriptor builds a minimal manifest from a descriptor, used
// when only the lighter-weight descriptor is available.
func ManifestFromDescriptor(d core.Descriptor) *Manifest {
	m := &Manifest{
		Name:         d.Name,
		Domain:       d.Domain,
		Layer:        string(d.Layer),
		Capabilities: append([]string(nil), d.Capabilities...),
	}
	sort.Strings(m.Capabilities)
	return m
}
