package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/api/handlers"
	mw "github.com/Harshitk-cp/fastinf/internal/api/middleware"
	"github.com/Harshitk-cp/fastinf/internal/buildconfig"
	"github.com/Harshitk-cp/fastinf/internal/config"
	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/service"
	"github.com/Harshitk-cp/fastinf/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const limiterMaxAge = 10 * time.Minute

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires an App. DB may be nil when the service runs without a
// database check; a zero Inference keeps domain.DefaultInferenceConfig and
// zero Limits leave request budgets uncapped.
type Options struct {
	Store          domain.RunStore
	DB             Pinger
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	Inference      domain.InferenceConfig
	Limits         service.Limits
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Inference *service.InferenceService
	Expirer   *service.ExpirerService

	limiter   *mw.RateLimiter
	metrics   mw.Metrics
	startTime time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewApp builds the production app on a pgx pool from env configuration.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	return New(Options{
		Store:          store.NewRunStore(db),
		DB:             db,
		APIKey:         config.APIKey(),
		RateLimitRPS:   config.RateLimitRPS(),
		RateLimitBurst: config.RateLimitBurst(),
		Inference:      config.Inference(),
		Limits: service.Limits{
			MaxMessages: config.RequestMaxMessages(),
			MaxDuration: config.RequestMaxDuration(),
		},
	}, logger)
}

func New(opts Options, logger *zap.Logger) *App {
	inferenceSvc := service.NewInferenceService(opts.Store, logger)
	if opts.Inference.Queue != "" {
		inferenceSvc.SetDefaults(opts.Inference)
	}
	inferenceSvc.SetLimits(opts.Limits)
	expirerSvc := service.NewExpirerService(opts.Store, logger)
	expirerSvc.SetRetention(config.RunRetention())
	expirerSvc.SetInterval(config.ExpirerInterval())

	inferenceHandler := handlers.NewInferenceHandler(inferenceSvc, logger)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Inference: inferenceSvc,
		Expirer:   expirerSvc,
		limiter:   mw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(app.limiter.Middleware)

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(opts.DB))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(opts.APIKey))

		r.Post("/infer", inferenceHandler.Infer)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", inferenceHandler.ListRuns)
			r.Get("/{id}", inferenceHandler.GetRun)
		})
	})

	return app
}

// Start launches the expirer and the rate limiter cleanup.
func (app *App) Start() {
	app.Expirer.Start()
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		ticker := time.NewTicker(limiterMaxAge)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.limiter.Cleanup(limiterMaxAge)
			case <-app.stopCh:
				return
			}
		}
	}()
}

// Stop ends the background work started by Start.
func (app *App) Stop() {
	app.Expirer.Stop()
	close(app.stopCh)
	app.wg.Wait()
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		body := map[string]string{"status": "ok"}
		for k, v := range buildconfig.VersionInfo() {
			body[k] = v
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := app.metrics.Snapshot()
		response["uptime_seconds"] = uptime.Seconds()
		response["uptime_human"] = uptime.Round(time.Second).String()
		response["goroutines"] = runtime.NumGoroutine()
		response["rate_limited_clients"] = app.limiter.Len()
		response["memory"] = map[string]any{
			"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
			"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
			"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
			"num_gc":         memStats.NumGC,
		}
		response["go_version"] = runtime.Version()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and services satisfy interfaces at compile time.
var (
	_ domain.RunStore  = (*store.RunStore)(nil)
	_ handlers.Inferer = (*service.InferenceService)(nil)
	_ Pinger           = (*pgxpool.Pool)(nil)
)
