// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/openclub/courtbook/internal/api"
	"github.com/openclub/courtbook/internal/api/bookings"
	"github.com/openclub/courtbook/internal/api/ruleconfigs"
	"github.com/openclub/courtbook/internal/booking"
	"github.com/openclub/courtbook/internal/config"
	"github.com/openclub/courtbook/internal/ratelimit"
	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/store"
)

func newServer(cfg *config.Config, service *booking.Service, engine *rules.Engine, limiter *ratelimit.Limiter, st *store.Store) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	bookings.InitHandlers(service, engine, limiter)
	ruleconfigs.InitHandlers(st)

	registerRoutes(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Booking routes
	mux.HandleFunc("/api/v1/bookings", bookings.HandleCreate)
	mux.HandleFunc("/api/v1/bookings/evaluate", bookings.HandleEvaluate)
	mux.HandleFunc("/api/v1/bookings/cancel", bookings.HandleCancel)
	mux.HandleFunc("/api/v1/admin/bookings/override", bookings.HandleCreateWithOverride)

	// Rule configuration admin routes
	mux.HandleFunc("/api/v1/admin/rule-configs", ruleConfigHandler)
}

// ruleConfigHandler dispatches on method since list, upsert and delete
// share one path.
func ruleConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ruleconfigs.HandleList(w, r)
	case http.MethodPut, http.MethodPost:
		ruleconfigs.HandleUpsert(w, r)
	case http.MethodDelete:
		ruleconfigs.HandleDelete(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}
