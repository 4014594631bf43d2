package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/appointment"
	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/directory"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Scanner      *availability.Scanner
	Profiles     availability.ProfileStore
	Providers    directory.Directory
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/providers", listProvidersHandler(cfg.Providers))
	r.Route("/providers/{id}", func(r chi.Router) {
		r.Get("/slots", getSlotsHandler(cfg.Scanner))
		r.Get("/next-available", nextAvailableHandler(cfg.Scanner))
		r.Get("/summary", summaryHandler(cfg.Scanner))
		r.Put("/availability", putProfileHandler(cfg.Profiles, cfg.Providers))
		r.Put("/custom-slots/{date}", putCustomSlotsHandler(cfg.Profiles))
		r.Delete("/custom-slots/{date}", deleteCustomSlotsHandler(cfg.Profiles))
		r.Put("/blocked-slots/{date}", putBlockedSlotsHandler(cfg.Profiles))
		r.Delete("/blocked-slots/{date}", deleteBlockedSlotsHandler(cfg.Profiles))
	})

	r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
	r.Get("/appointments/unassigned", listUnassignedHandler(cfg.Appointments))
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", getAppointmentHandler(cfg.Appointments))
		r.Post("/claim", claimAppointmentHandler(cfg.Appointments))
		r.Post("/status", updateStatusHandler(cfg.Appointments))
		r.Post("/notes", updateNotesHandler(cfg.Appointments))
	})

	r.Get("/patients/{id}/appointments", listByPatientHandler(cfg.Appointments))

	return r
}
