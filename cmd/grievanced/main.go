// Command grievanced runs the grievance redressal backend: the HTTP API
// surface, the SLA/escalation scheduler, and the conversational intake
// machine, all sharing one complaint store. Grounded on the teacher's
// cmd/appserver/main.go signal-handling shutdown sequence.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/openmuni/grievance-core/internal/app/attachment"
	"github.com/openmuni/grievance-core/internal/app/auth"
	"github.com/openmuni/grievance-core/internal/app/cache"
	"github.com/openmuni/grievance-core/internal/app/classifier"
	"github.com/openmuni/grievance-core/internal/app/clock"
	"github.com/openmuni/grievance-core/internal/app/domain/reference"
	"github.com/openmuni/grievance-core/internal/app/httpapi"
	"github.com/openmuni/grievance-core/internal/app/services/intake"
	"github.com/openmuni/grievance-core/internal/app/services/lifecycle"
	"github.com/openmuni/grievance-core/internal/app/services/resolution"
	"github.com/openmuni/grievance-core/internal/app/services/scheduler"
	"github.com/openmuni/grievance-core/internal/app/storage"
	"github.com/openmuni/grievance-core/internal/app/storage/memory"
	"github.com/openmuni/grievance-core/internal/app/storage/postgres"
	"github.com/openmuni/grievance-core/internal/framework"
	"github.com/openmuni/grievance-core/internal/platform/database"
	"github.com/openmuni/grievance-core/internal/platform/migrations"
	"github.com/openmuni/grievance-core/pkg/config"
	"github.com/openmuni/grievance-core/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	classifierURL := flag.String("classifier-url", "", "base URL of the external text-classification model")
	redisURL := flag.String("redis-url", "", "Redis URL for the reference-data read-through cache (disabled when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log1 := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	rootCtx := context.Background()

	dsnVal := resolveDSN(*dsn, cfg)
	stores, db, err := buildStores(rootCtx, dsnVal, *runMigrations)
	if err != nil {
		log.Fatalf("build stores: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	clk := clock.System{}
	cls := buildClassifier(*classifierURL)
	redisClient := buildRedisClient(*redisURL, log1)
	if redisClient != nil {
		defer redisClient.Close()
	}
	refStore := cache.NewReferenceStore(stores.Reference, redisClient, cache.DefaultTTL)

	bus := framework.NewEventBus()
	bus.Subscribe(func(ctx context.Context, event string, payload any) {
		log1.WithField("event", event).Info("escalation notification dispatched")
	})

	engine := lifecycle.New(
		stores.Complaints, stores.Proofs, stores.Signoffs, stores.Audit,
		refStore, cls, clk, lifecycle.DefaultConfig(), stores.Tx, log1,
	)
	engine.Bus = bus
	resSvc := resolution.New(engine, stores.Proofs, stores.Signoffs, stores.Complaints, clk)
	sched := scheduler.New(engine, stores.Complaints, clk, log1)

	identities := intake.NewMemoryIdentityResolver()
	intakeSvc := intake.New(stores.Sessions, engine, identities, clk, log1)

	attachments := attachment.NewMemoryStore(strings.TrimSuffix(determineAddr(*addr, cfg), "/"))

	handler := &httpapi.Handler{
		Engine:     engine,
		Resolution: resSvc,
		Intake:     intakeSvc,
		Complaints: stores.Complaints,
		Audit:      stores.Audit,
		Attachment: attachments,
		Log:        log1,
		StartedAt:  time.Now().UTC(),
	}

	validator := buildValidator(cfg, log1)
	router := httpapi.NewRouter(handler, validator, corsOrigins(cfg))

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpSvc, err := framework.NewService("grievance-http-api", "httpapi").
		WithDescription("gorilla/mux router serving the complaint, resolution, audit, and intake surfaces").
		WithLayer("ingress").
		WithCapabilities("complaints", "resolution", "audit", "intake-webhook").
		OnStart(func(context.Context) error {
			go func() {
				log1.Infof("grievance backend listening on %s", listenAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("http server: %v", err)
				}
			}()
			return nil
		}).
		OnPreStop(func(ctx context.Context) error {
			log1.Info("draining in-flight requests")
			return server.Shutdown(ctx)
		}).
		Build()
	if err != nil {
		log.Fatalf("build http service: %v", err)
	}

	services := []interface {
		Start(context.Context) error
		Stop(context.Context) error
	}{httpSvc, sched}

	for _, svc := range services {
		if err := svc.Start(rootCtx); err != nil {
			log.Fatalf("start service: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log1.Errorf("service shutdown: %v", err)
		}
	}
}

// appStores bundles the store set main wires into every service, regardless
// of whether it is backed by Postgres or the in-memory fallback.
type appStores struct {
	Complaints storage.ComplaintStore
	Proofs     storage.ProofStore
	Signoffs   storage.SignoffStore
	Audit      storage.AuditStore
	Sessions   storage.SessionStore
	Reference  storage.ReferenceStore
	Tx         storage.Transactor
}

func buildStores(ctx context.Context, dsn string, runMigrations bool) (*appStores, *sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		mem := memory.New()
		seedDevReference(mem)
		return &appStores{
			Complaints: mem.Complaints,
			Proofs:     mem.Proofs,
			Signoffs:   mem.Signoffs,
			Audit:      mem.Audit,
			Sessions:   mem.Sessions,
			Reference:  mem.Reference,
			Tx:         mem.Tx,
		}, nil, nil
	}

	db, err := database.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if runMigrations {
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	sdb := sqlx.NewDb(db, "postgres")
	return &appStores{
		Complaints: postgres.NewComplaintStore(sdb),
		Proofs:     postgres.NewProofStore(sdb),
		Signoffs:   postgres.NewSignoffStore(sdb),
		Audit:      postgres.NewAuditStore(sdb),
		Sessions:   postgres.NewSessionStore(sdb),
		Reference:  postgres.NewReferenceStore(sdb),
		Tx:         postgres.NewTxManager(sdb),
	}, db, nil
}

// seedDevReference gives the in-memory fallback a minimal category/department/
// SLA matrix so a DSN-less run has something to route against. Postgres-backed
// deployments seed these reference tables through their own migration/ops
// process instead.
func seedDevReference(mem *memory.Stores) {
	mem.SeedReference(
		[]reference.Category{
			{ID: 1, Name: "Potholes"},
			{ID: 2, Name: "Streetlights"},
			{ID: 3, Name: "Garbage Collection"},
			{ID: 4, Name: "Water Supply"},
		},
		[]reference.Department{
			{ID: 1, Name: "Roads"},
			{ID: 2, Name: "Electrical"},
			{ID: 3, Name: "Sanitation"},
			{ID: 4, Name: "Water Works"},
		},
		map[string]int{
			"1:LOW": 10, "1:MEDIUM": 7, "1:HIGH": 3, "1:CRITICAL": 1,
			"2:LOW": 10, "2:MEDIUM": 7, "2:HIGH": 3, "2:CRITICAL": 1,
			"3:LOW": 5, "3:MEDIUM": 3, "3:HIGH": 2, "3:CRITICAL": 1,
			"4:LOW": 7, "4:MEDIUM": 5, "4:HIGH": 2, "4:CRITICAL": 1,
		},
	)
}

func buildClassifier(endpoint string) *classifier.Adapter {
	endpoint = strings.TrimSpace(endpoint)
	return classifier.New(endpoint, &http.Client{Timeout: classifier.DefaultTimeout})
}

func buildRedisClient(rawURL string, log1 *logger.Logger) *redis.Client {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		log1.Errorf("grievanced: invalid redis url, reference cache disabled: %v", err)
		return nil
	}
	return redis.NewClient(opts)
}

func buildValidator(cfg *config.Config, log1 *logger.Logger) httpapi.JWTValidator {
	if secret := strings.TrimSpace(cfg.Auth.JWTSecret); secret != "" {
		return httpapi.NewManagerValidator(auth.NewManager(secret))
	}
	log1.Warn("grievanced: AUTH_JWT_SECRET not configured; all authenticated endpoints will reject")
	return httpapi.NewManagerValidator(auth.NewManager(""))
}

func corsOrigins(cfg *config.Config) []string {
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return config.LoadFile(trimmed)
	}
	return config.Load()
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if cfg != nil && cfg.Server.Port != 0 {
		host := strings.TrimSpace(cfg.Server.Host)
		if host == "" {
			host = "0.0.0.0"
		}
		return host + ":" + strconv.Itoa(cfg.Server.Port)
	}
	return ":8080"
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg == nil {
		return ""
	}
	if cfg.Database.DSN != "" {
		return strings.TrimSpace(cfg.Database.DSN)
	}
	if cfg.Database.Host != "" && cfg.Database.Name != "" {
		return cfg.Database.ConnectionString()
	}
	return ""
}
