package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"minimart/backend/internal/audit"
	"minimart/backend/internal/currency"
	"minimart/backend/internal/domain"
	"minimart/backend/internal/service"
	"minimart/backend/internal/store"
)

const (
	maxBodyBytes      = 1 << 20
	loginMaxAttempts  = 10
	loginAttemptDelay = time.Minute
	defaultAuditPage  = 50
	maxAuditPage      = 200
)

// Server is the HTTP surface over the service layer. It owns request
// decoding, auth enforcement and the mapping from domain errors to statuses;
// business rules stay below it.
type Server struct {
	svc          *service.Service
	auth         *AuthManager
	rates        *currency.Client
	auditor      audit.Recorder
	allowOrigin  string
	loginLimiter *attemptLimiter
}

func NewServer(svc *service.Service, auth *AuthManager, rates *currency.Client, auditor audit.Recorder, allowOrigin string) *Server {
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &Server{
		svc:          svc,
		auth:         auth,
		rates:        rates,
		auditor:      auditor,
		allowOrigin:  allowOrigin,
		loginLimiter: newAttemptLimiter(loginMaxAttempts, loginAttemptDelay),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	mux.Handle("GET /api/v1/products", s.requireAuth(s.handleListProducts))
	mux.Handle("POST /api/v1/products", s.requireAuth(s.handleCreateProduct))
	mux.Handle("GET /api/v1/products/{id}", s.requireAuth(s.handleGetProduct))
	mux.Handle("PUT /api/v1/products/{id}", s.requireAuth(s.handleUpdateProduct))
	mux.Handle("DELETE /api/v1/products/{id}", s.requireAuth(s.handleDeleteProduct))

	mux.Handle("GET /api/v1/sales", s.requireAuth(s.handleListSales))
	mux.Handle("POST /api/v1/sales", s.requireAuth(s.handleRecordSale))

	mux.Handle("GET /api/v1/dashboard/metrics", s.requireAuth(s.handleDashboard))
	mux.Handle("GET /api/v1/currency/rates", s.requireAuth(s.handleCurrencyRates))

	mux.Handle("GET /api/v1/audit-logs", s.requireAuth(s.handleListAuditLogs, domain.RoleAdmin))

	return s.withCORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.auth.Signup(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.auditor.Record(r.Context(), "USER_SIGNED_UP", audit.Event{
		UserID:    user.ID,
		Details:   map[string]any{"email": user.Email, "role": user.Role},
		IPAddress: clientIP(r),
	})
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
		"role":  user.Role,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	key := clientIP(r)
	if !s.loginLimiter.allow(key) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "too many login attempts, try again later",
		})
		return
	}

	var req domain.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.loginLimiter.noteFailure(key)
			s.auditor.Record(r.Context(), "USER_LOGIN_FAILED", audit.Event{
				Details:   map[string]any{"email": strings.ToLower(strings.TrimSpace(req.Email))},
				IPAddress: key,
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}
		s.writeError(w, err)
		return
	}

	s.loginLimiter.reset(key)
	actor, _ := s.auth.ParseToken(resp.AccessToken)
	s.auditor.Record(r.Context(), "USER_LOGGED_IN", audit.Event{
		UserID:    actor.ID,
		Details:   map[string]any{"email": actor.Email},
		IPAddress: key,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.ListProducts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.svc.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var input domain.ProductInput
	if !decodeBody(w, r, &input) {
		return
	}
	product, err := s.svc.CreateProduct(r.Context(), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var input domain.ProductInput
	if !decodeBody(w, r, &input) {
		return
	}
	product, err := s.svc.UpdateProduct(r.Context(), r.PathValue("id"), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.svc.ListSales(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sale, err := s.svc.RecordSale(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.svc.DashboardMetrics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleCurrencyRates(w http.ResponseWriter, r *http.Request) {
	var codes []string
	if raw := r.URL.Query().Get("codes"); raw != "" {
		codes = strings.Split(raw, ",")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base":  "USD",
		"rates": s.rates.Rates(r.Context(), codes),
	})
}

func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAuditPage)
	if limit < 1 || limit > maxAuditPage {
		limit = defaultAuditPage
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := s.svc.ListAuditLogs(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// requireAuth authenticates the bearer token and places the actor and client
// address on the request context. When roles are given, the actor's role
// must be one of them.
func (s *Server) requireAuth(next http.HandlerFunc, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		actor, err := s.auth.ParseToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}

		if len(roles) > 0 {
			allowed := false
			for _, role := range roles {
				if actor.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
				return
			}
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = service.WithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError maps domain errors to HTTP statuses. Anything unrecognized is a
// 500 with a generic body; the detail goes to the log, not the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *store.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "validation failed",
			"fieldErrors": validationErr.Fields,
		})
		return
	}

	var notFoundErr *store.NotFoundError
	if errors.As(err, &notFoundErr) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFoundErr.Error()})
		return
	}

	var stockErr *store.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": stockErr.Error(),
			"details": map[string]any{
				"product_id":   stockErr.ProductID,
				"product_name": stockErr.ProductName,
				"available":    stockErr.Available,
				"requested":    stockErr.Requested,
			},
		})
		return
	}

	var refErr *store.ReferentialIntegrityError
	if errors.As(err, &refErr) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": refErr.Error()})
		return
	}

	log.Printf("[httpapi] WARN: request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[httpapi] WARN: failed to write response: %v", err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// clientIP prefers the first hop recorded by a proxy, then the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
