/*
Package handler provides the HTTP handlers and routing setup for the read-only status API.

This file defines the main Router, applying necessary middleware like logging, CORS,
and panic recovery before delegating requests to the status handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"tcpchat/internal/configs"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/resp"
	"tcpchat/internal/registry"
)

// Router builds the status API router.
func Router(reg *registry.Registry, cfg *configs.AppConfig) http.Handler {
	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if cfg.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(cfg.AllowedOrigins) > 0 {
		corsAllowedOrigins = cfg.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "tcpchat",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", HandleStatus(reg))
	})

	return r
}
