package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gfranzoni/accountledger/internal/auth"
	"github.com/gfranzoni/accountledger/internal/domain"
	"github.com/gfranzoni/accountledger/internal/service"
	"github.com/gfranzoni/accountledger/internal/validate"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Balance mutations processed, by type and outcome",
	}, []string{"type", "outcome"})
)

type Handler struct {
	svc  *service.AccountService
	auth *auth.Authenticator
}

func NewHandler(svc *service.AccountService, a *auth.Authenticator) *Handler {
	return &Handler{svc: svc, auth: a}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON body", "POST", "/auth/login")
		return
	}
	token, ttl, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "Invalid credentials", "POST", "/auth/login")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
	}, "POST", "/auth/login")
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req validate.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON body", "POST", "/accounts")
		return
	}
	account, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, account, "POST", "/accounts")
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	accounts, total, err := h.svc.List(r.Context(), page)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"total":    total,
	}, "GET", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "GET", "/accounts/{id}")
	if !ok {
		return
	}
	account, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "PUT", "/accounts/{id}")
	if !ok {
		return
	}
	var req validate.AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON body", "PUT", "/accounts/{id}")
		return
	}
	account, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		h.respondDomainError(w, err, "PUT", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "PUT", "/accounts/{id}")
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "DELETE", "/accounts/{id}")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.respondDomainError(w, err, "DELETE", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "account deleted"}, "DELETE", "/accounts/{id}")
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, domain.OperationDeposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, domain.OperationWithdrawal)
}

func (h *Handler) mutateBalance(w http.ResponseWriter, r *http.Request, opType domain.OperationType) {
	endpoint := "/accounts/{id}/deposit"
	if opType == domain.OperationWithdrawal {
		endpoint = "/accounts/{id}/withdraw"
	}
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	id, ok := h.accountID(w, r, "POST", endpoint)
	if !ok {
		operationsTotal.WithLabelValues(string(opType), "rejected").Inc()
		return
	}
	var req validate.OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		operationsTotal.WithLabelValues(string(opType), "rejected").Inc()
		h.respondError(w, http.StatusBadRequest, "Invalid JSON body", "POST", endpoint)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")

	var account *domain.Account
	var err error
	if opType == domain.OperationDeposit {
		account, err = h.svc.Deposit(r.Context(), id, req, idemKey)
	} else {
		account, err = h.svc.Withdraw(r.Context(), id, req, idemKey)
	}
	if err != nil {
		operationsTotal.WithLabelValues(string(opType), "rejected").Inc()
		h.respondDomainError(w, err, "POST", endpoint)
		return
	}

	operationsTotal.WithLabelValues(string(opType), "applied").Inc()
	h.respondJSON(w, http.StatusOK, account, "POST", endpoint)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r, "GET", "/accounts/{id}/operations")
	if !ok {
		return
	}
	page := pageFromQuery(r)
	ops, total, err := h.svc.History(r.Context(), id, page)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}/operations")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"total":      total,
	}, "GET", "/accounts/{id}/operations")
}

// Helpers

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request, method, endpoint string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Account id must be a valid UUID", method, endpoint)
		return uuid.Nil, false
	}
	return id, true
}

func pageFromQuery(r *http.Request) validate.PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return validate.PageRequest{Page: page, PageSize: size}
}

// respondDomainError maps error kinds to status codes. The switch is on kind,
// never on message text; unrecognized errors are logged and reported as a
// generic server failure without exposing the cause.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	var v *domain.ValidationError
	switch {
	case errors.As(err, &v):
		h.respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": v.Fields,
		}, method, endpoint)
	case errors.Is(err, domain.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "Account not found", method, endpoint)
	case errors.Is(err, domain.ErrEmailTaken):
		h.respondError(w, http.StatusConflict, "Email already registered", method, endpoint)
	case errors.Is(err, domain.ErrIdempotencyConflict):
		h.respondError(w, http.StatusConflict, "Request with this idempotency key in progress", method, endpoint)
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	default:
		log.Printf("%s %s failed: %v", method, endpoint, err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
