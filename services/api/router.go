// Package api serves the firmware hosting site over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"lvfs/pkg/db"
	"lvfs/pkg/render"
	"lvfs/pkg/telemetry"
	"lvfs/services/hosting"
)

const (
	defaultRateLimit = 30
	// maxRequestBody only rejects abusive bodies. Uploads below it are
	// streamed and always complete with an outcome.
	maxRequestBody = 256 << 20
	maxFieldSize   = 4 << 10
)

// Hosting is the domain surface the handlers call. *hosting.Service satisfies it.
type Hosting interface {
	Upload(ctx context.Context, up hosting.Upload) (*hosting.Outcome, *hosting.Firmware, error)
	Administer(ctx context.Context, req hosting.AdminRequest) (*hosting.Outcome, error)
	History(ctx context.Context) ([]hosting.HistoryEntry, error)
	OpenFirmware(ctx context.Context, checksum string) (*hosting.Firmware, io.ReadCloser, error)
}

// ReadyFunc reports whether backing services are reachable.
type ReadyFunc func(ctx context.Context) error

// Config controls runtime behaviour for the API handlers.
type Config struct {
	ServiceName    string
	AllowedOrigins []string
	// RateLimit is the number of POST requests allowed per client IP per minute.
	RateLimit int
}

// API wires dependencies, template renderer, and configuration for HTTP handlers.
type API struct {
	hosting  Hosting
	renderer *render.Engine
	metrics  *Metrics
	ready    ReadyFunc
	log      zerolog.Logger
	config   Config
}

// New initialises the API layer with defaults applied to the provided configuration.
func New(svc Hosting, renderer *render.Engine, metrics *Metrics, ready ReadyFunc, logger zerolog.Logger, cfg Config) (*API, error) {
	if svc == nil {
		return nil, errors.New("hosting service is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lvfs-api"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	return &API{
		hosting:  svc,
		renderer: renderer,
		metrics:  metrics,
		ready:    ready,
		log:      logger,
		config:   cfg,
	}, nil
}

// Routes constructs the chi router containing all endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(telemetry.Middleware(a.config.ServiceName))
	r.Use(hlog.NewHandler(a.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		ev := hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration)
		if id := telemetry.TraceID(r.Context()); id != "" {
			ev = ev.Str("trace_id", id)
		}
		ev.Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

		r.Get("/", a.handleIndex)
		r.Get("/result", a.handleResult)
		r.Get("/history", a.handleHistory)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: a.config.AllowedOrigins,
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         int((10 * time.Minute).Seconds()),
			}))
			r.Get("/firmware", a.handleFirmwareList)
		})
	})

	r.Get("/downloads/{name}", a.handleDownload)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(a.config.RateLimit, time.Minute))
		r.Post("/upload", a.handleUpload)
		r.Post("/admin", a.handleAdmin)
	})

	return r, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := db.WithTimeout(r.Context())
	defer cancel()

	if err := a.ready(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("not ready")
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "not ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
