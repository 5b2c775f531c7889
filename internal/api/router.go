package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/metrics"
	"github.com/hackgods/appointment-admin-console/internal/notify"
)

type RouterConfig struct {
	Service     *appointment.Service
	Feed        *notify.Feed
	Reports     ReportLoader
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Logger      *zap.Logger
	Env         string
	Version     string
	RateLimit   int
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Service, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{svc: cfg.Service, feed: cfg.Feed, reports: cfg.Reports}
	r.Route("/admin", func(r chi.Router) {
		r.Get("/appointments", h.listAppointments)
		r.Post("/appointments/bulk/cancel", h.bulk(cfg.Service.BulkCancel))
		r.Post("/appointments/bulk/reminder", h.bulk(cfg.Service.BulkRemind))
		r.Post("/appointments/{id}/reschedule", h.reschedule)
		r.Post("/appointments/{id}/reminder", h.sendReminder)
		r.Delete("/appointments/{id}", h.deleteAppointment)

		r.Get("/calendar", h.calendar)
		r.Get("/conflicts", h.conflicts)
		r.Get("/conflicts/report", h.conflictReport)
		r.Get("/revenue", h.revenue)
		r.Get("/notifications", h.notifications)
	})

	return r
}
