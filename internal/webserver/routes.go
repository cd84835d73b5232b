package webserver

import (
	"net/http"

	"github.com/magneticlabs/surfbench/internal/webapi"
)

func registerRoutes(mux *http.ServeMux, cfg Config) {
	webapi.RegisterRoutes(mux, cfg.Store)

	// Run streaming endpoint. Registered directly, not under /api: the
	// client dials ws://host/runs/{id}.
	mux.HandleFunc("GET /runs/{id}", cfg.StreamHandler.ServeRun)
}
