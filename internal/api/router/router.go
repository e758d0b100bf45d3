// Package router provides HTTP routing configuration using Chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/srikantkt/certmgr/internal/api/handler"
	"github.com/srikantkt/certmgr/internal/api/middleware"
	"github.com/srikantkt/certmgr/internal/api/service"
)

// Config holds router configuration.
type Config struct {
	Version string
	Service *service.CAService
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS)

	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Service)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	caHandler := handler.NewCAHandler(cfg.Service)
	certHandler := handler.NewCertHandler(cfg.Service)
	crlHandler := handler.NewCRLHandler(cfg.Service)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/init", caHandler.Init)
		r.Get("/config", caHandler.Config)

		r.Route("/ca", func(r chi.Router) {
			r.Post("/root", caHandler.CreateRoot)
			r.Post("/intermediate", caHandler.CreateIntermediate)
		})

		r.Post("/csr", certHandler.CreateCSR)

		r.Route("/certificates", func(r chi.Router) {
			r.Post("/sign", certHandler.Sign)
			r.Post("/revoke", certHandler.Revoke)
			r.Get("/list", certHandler.List)
			r.Get("/download/{filename}", certHandler.Download)
		})

		r.Route("/crl", func(r chi.Router) {
			r.Post("/update", crlHandler.Update)
		})
	})

	return r
}
