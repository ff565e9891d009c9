// Package router assembles the HTTP surface: middleware chain, public routes,
// authenticated routes, and the admin subtree.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounthandler "formalitys/internal/account/handler"
	dossierhandler "formalitys/internal/dossier/handler"
	paymenthandler "formalitys/internal/payment/handler"
	"formalitys/internal/platform/middleware"
)

// Deps carries everything the router mounts.
type Deps struct {
	Accounts  *accounthandler.Handler
	Dossiers  *dossierhandler.Handler
	Payments  *paymenthandler.Handler
	Validator middleware.JWTValidator
	Logger    *slog.Logger
	Health    http.HandlerFunc
}

// New builds the service router.
func New(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	if deps.Health != nil {
		r.Get("/healthz", deps.Health)
	}
	r.Handle("/metrics", promhttp.Handler())

	deps.Accounts.Register(r)
	deps.Payments.RegisterWebhook(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		deps.Dossiers.Register(r)
		deps.Payments.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(deps.Logger))
			deps.Dossiers.RegisterAdmin(r)
		})
	})
	return r
}
