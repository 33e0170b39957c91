package routers

import (
	"log/slog"
	"net/http"

	"taxEvents/internal/transport/httpServer/handlers"
	myMiddleware "taxEvents/internal/transport/httpServer/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router собирает маршруты API.
type Router struct {
	log               *slog.Logger
	auth              *myMiddleware.Auth
	eventHandler      *handlers.EventHandler
	reviewHandler     *handlers.ReviewHandler
	validationHandler *handlers.ValidationHandler
	metrics           http.Handler
}

// NewRouter создаёт новый экземпляр Router.
func NewRouter(
	log *slog.Logger,
	auth *myMiddleware.Auth,
	eventHandler *handlers.EventHandler,
	reviewHandler *handlers.ReviewHandler,
	validationHandler *handlers.ValidationHandler,
	metrics http.Handler,
) *Router {
	return &Router{
		log:               log,
		auth:              auth,
		eventHandler:      eventHandler,
		reviewHandler:     reviewHandler,
		validationHandler: validationHandler,
		metrics:           metrics,
	}
}

// Mount регистрирует middleware и маршруты в mux.
func (r *Router) Mount(mux *chi.Mux) {

	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.AllowAll().Handler)
	mux.Use(myMiddleware.LoggerMiddleware(r.log))
	mux.Use(middleware.Heartbeat("/ping"))

	if r.metrics != nil {
		mux.Handle("/metrics", r.metrics)
	}

	mux.Route("/api", func(mux chi.Router) {
		mux.Route("/v1", func(mux chi.Router) {
			mux.Route("/events", func(mux chi.Router) {
				mux.With(r.auth.AdminOrCron).Post("/ingest", r.eventHandler.IngestGenerated)
				mux.With(r.auth.Optional).Post("/suggestions", r.eventHandler.Suggest)
				mux.With(r.auth.Optional).Get("/curated", r.eventHandler.Curated)
			})

			mux.Route("/admin/events", func(mux chi.Router) {
				mux.With(r.auth.Admin).Post("/", r.eventHandler.CreateEvent)
				mux.With(r.auth.Admin).Delete("/", r.eventHandler.DeleteAll)

				mux.With(r.auth.Admin).Get("/review", r.reviewHandler.List)
				mux.With(r.auth.Admin).Patch("/review", r.reviewHandler.Update)

				mux.With(r.auth.AdminOrCron).Post("/recheck", r.validationHandler.Recheck)
				mux.With(r.auth.Admin).Get("/recheck", r.validationHandler.Status)
			})
		})
	})
}
