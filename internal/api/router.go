package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ispkit/notify/pkg/httpserver"
)

// Deps collects the wired handlers the router mounts.
type Deps struct {
	Queue    *QueueHandler
	Settings *SettingsHandler
	Devices  *DevicesHandler
	Events   *EventsHandler
	WS       http.Handler
	Log      *slog.Logger

	// HealthChecks gate the readiness probe; typically the postgres
	// and redis healthcheck closures.
	HealthChecks []func(context.Context) error
}

// NewRouter assembles the service's HTTP surface.
func NewRouter(ctx context.Context, deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, deps.HealthChecks...))

	if deps.WS != nil {
		r.Handle("/ws", deps.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Events != nil {
			deps.Events.Routes(r)
		}
		if deps.Settings != nil {
			deps.Settings.Routes(r)
		}
		if deps.Devices != nil {
			deps.Devices.Routes(r)
		}
		if deps.Queue != nil {
			r.Route("/queue", deps.Queue.Routes)
		}
	})

	return r
}
