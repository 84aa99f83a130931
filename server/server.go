// Package server exposes the read-only HTTP/JSON surface over the
// projection. The ingestor is the only writer; this package never mutates.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dao-service/core"
	"dao-service/server/controllers"
	"dao-service/server/middleware"
)

// New builds the HTTP router. checkChain reports chain node reachability for
// the health endpoint.
func New(store *core.Store, cache *core.Cache, checkChain func() bool) *chi.Mux {
	ctrl := controllers.NewProjectionController(store)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.BlockMetadata(cache))

	r.Get("/ping", ctrl.Ping)
	r.Get("/health", ctrl.Health(checkChain))
	r.Get("/daos", ctrl.ListDaos)
	r.Get("/daos/{id}", ctrl.GetDao)
	r.Get("/proposals/{id}", ctrl.GetProposal)
	r.Get("/assets/{id}", ctrl.GetAsset)
	return r
}

// ListenAndServe runs the router on the given port.
func ListenAndServe(port string, handler http.Handler) error {
	return http.ListenAndServe(":"+port, handler)
}
