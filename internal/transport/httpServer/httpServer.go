package httpServer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"taxEvents/internal/config"
	"taxEvents/internal/transport/httpServer/routers"
	"taxEvents/internal/utils/logger/sl"

	"github.com/go-chi/chi/v5"
)

// HttpServer - HTTP сервер API.
type HttpServer struct {
	log    *slog.Logger
	server *http.Server
}

// NewHttpServer создаёт сервер с таймаутами из конфига.
func NewHttpServer(log *slog.Logger, router *routers.Router, cfg *config.Config) *HttpServer {
	mux := chi.NewRouter()
	router.Mount(mux)

	return &HttpServer{
		log: log,
		server: &http.Server{
			Addr:              cfg.HttpServer.Addr(),
			Handler:           mux,
			ReadHeaderTimeout: cfg.HttpServer.Timeout,
			ReadTimeout:       cfg.HttpServer.Timeout,
		},
	}
}

// Listen обслуживает запросы, пока не вызван Shutdown.
func (s *HttpServer) Listen() {
	op := "httpServer.Listen()"
	log := s.log.With(slog.String("op", op))

	log.Info("http server started", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server stopped", sl.Err(err))
	}
}

// Shutdown дожидается текущих запросов в пределах ctx.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
