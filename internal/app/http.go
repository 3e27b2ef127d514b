package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestMetrics records one finished request and serves the scrape
// endpoint.
type RequestMetrics interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}

type Options struct {
	CORSOrigin string
	// Production hides internal error text from responses.
	Production bool
	Metrics    RequestMetrics
	// ReadyChecks are probed by /api/ready in addition to the database.
	ReadyChecks map[string]func(context.Context) error
	Log         *zap.Logger
}

type HTTPServer struct {
	service *Service
	opts    Options
	log     *zap.Logger
}

func NewHTTPServer(service *Service, opts Options) *HTTPServer {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &HTTPServer{service: service, opts: opts, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Post("/api/login", s.handleLogin)
	r.Post("/api/forgetpassword", s.handleForgetPassword)
	r.Post("/api/resetpassword", s.handleResetPassword)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireSession)

		pr.Post("/api/logout", s.handleLogout)

		pr.Post("/api/lead/create", s.handleLeadCreate)
		pr.Get("/api/lead/read/{id}", s.handleLeadRead)
		pr.Patch("/api/lead/update/{id}", s.handleLeadUpdate)
		pr.Delete("/api/lead/delete/{id}", s.handleLeadDelete)
		pr.Get("/api/lead/list", s.handleLeadList)
		pr.Get("/api/lead/listAll", s.handleLeadListAll)

		pr.Get("/api/organization/list", s.handleOrganizationList)
		pr.Patch("/api/organization/update/{id}", s.handleOrganizationUpdate)
		pr.Delete("/api/organization/delete/{id}", s.handleOrganizationDelete)
		pr.Post("/api/organization/{id}/renewMou", s.handleRenewMou)
		pr.Post("/api/organization/{id}/reallocatePartner", s.handleReallocate)
		pr.Get("/api/organization/{id}/report", s.handleOrganizationReport)

		pr.Get("/api/poc/list", s.handlePocList)
		pr.Patch("/api/poc/update/{id}", s.handlePocUpdate)
		pr.Delete("/api/poc/delete/{id}", s.handlePocDelete)

		pr.Get("/api/state/listAll", s.handleStateList)
		pr.Post("/api/state/create", s.handleStateCreate)
		pr.Get("/api/city/listAll", s.handleCityList)
		pr.Post("/api/city/create", s.handleCityCreate)

		pr.Get("/api/user/listAll", s.handleUserList)
		pr.Post("/api/user/sync", s.handleUserSync)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}

	probe := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			check := map[string]any{"status": "error"}
			if !s.opts.Production {
				check["error"] = err.Error()
			}
			checks[name] = check
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	probe("database", s.service.Ping)
	for name, fn := range s.opts.ReadyChecks {
		probe(name, fn)
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type actorKey struct{}

func actorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

// requireSession resolves the bearer token to its user. Every rejection
// carries jwtExpired so the client drops its token.
func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.service.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			if status, expired, ok := authStatus(err); ok {
				writeJSON(w, status, map[string]any{
					"success":    false,
					"result":     nil,
					"code":       "UNAUTHORIZED",
					"message":    authMessage(err),
					"jwtExpired": expired,
				})
				return
			}
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actorFromUser(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.opts.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		elapsed := time.Since(started)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveRequest(r.Method, route, writer.status, elapsed)
		}
		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"result":  nil,
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// fail maps err to a response. Server errors are logged; their text is
// echoed only outside production.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	response := map[string]any{
		"success": false,
		"result":  nil,
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	if !s.opts.Production && status >= http.StatusInternalServerError {
		response["error"] = err.Error()
	}
	writeJSON(w, status, response)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domainError(http.StatusBadRequest, "INVALID_ID", "Invalid id", nil)
	}
	return id, nil
}

// listQuery reads page, items, sortBy, sortValue and q.
func listQuery(r *http.Request) ListQuery {
	values := r.URL.Query()
	page, _ := strconv.Atoi(values.Get("page"))
	items, _ := strconv.Atoi(values.Get("items"))
	return ListQuery{
		Page:     page,
		Items:    items,
		SortBy:   values.Get("sortBy"),
		SortDesc: !strings.EqualFold(values.Get("sortValue"), "ASC"),
		Search:   values.Get("q"),
	}
}
