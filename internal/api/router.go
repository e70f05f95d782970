package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gfranzoni/accountledger/internal/auth"
	"github.com/gfranzoni/accountledger/internal/idempotency"
)

// NewRouter wires the public endpoints and the protected API subtree. The
// idempotency gate runs inside auth so the cache key includes the verified
// caller identity.
func NewRouter(h *Handler, authn *auth.Authenticator, cache *idempotency.Cache, limiter *RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/auth/login", h.Login).Methods("POST")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(AuthMiddleware(authn))
	apiV1.Use(limiter.Middleware)
	apiV1.Use(IdempotencyGate(cache))

	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	apiV1.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}", h.UpdateAccount).Methods("PUT")
	apiV1.HandleFunc("/accounts/{id}", h.DeleteAccount).Methods("DELETE")
	apiV1.HandleFunc("/accounts/{id}/deposit", h.Deposit).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/withdraw", h.Withdraw).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/operations", h.History).Methods("GET")

	return r
}
