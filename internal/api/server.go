package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/vendor-menu-cache/internal/config"
	"github.com/JakeFAU/vendor-menu-cache/internal/coordinator"
	"github.com/JakeFAU/vendor-menu-cache/internal/id/uuid"
	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
)

// Service is the set of vendor and meal operations the handlers call.
type Service interface {
	ListVendors(ctx context.Context) ([]menu.Vendor, error)
	RegisterVendor(ctx context.Context, in menu.VendorInput) (menu.Vendor, error)
	GetVendor(ctx context.Context, vendorID int64) (menu.Vendor, error)
	VendorStatus(ctx context.Context, vendorID int64) (menu.VendorStatus, error)
	DeleteVendor(ctx context.Context, vendorID int64) error
	GetMeals(ctx context.Context, vendorID int64) (coordinator.MealsResult, error)
	GetMenu(ctx context.Context, vendorID int64) ([]menu.Meal, error)
	ForceRescrape(ctx context.Context, vendorID int64) ([]menu.Meal, error)
	RefreshMetadata(ctx context.Context, vendorID int64) (menu.Vendor, error)
	ListMeals(ctx context.Context) ([]menu.Meal, error)
	DeleteMeal(ctx context.Context, mealID int64) error
	Ping(ctx context.Context) error
}

var _ Service = (*coordinator.Coordinator)(nil)

// Machine-readable error codes carried in every error body.
const (
	codeNotFound     = "not_found"
	codeValidation   = "validation_error"
	codeConflict     = "conflict"
	codeScrapeFailed = "scrape_failed"
	codeTimeout      = "timeout"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal"
)

const (
	defaultRequestTimeout = 90 * time.Second
	maxBodyBytes          = 1 << 20
)

// Server wires HTTP handlers to the coordinator.
type Server struct {
	router chi.Router
	svc    Service
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}

		r.Route("/vendors", func(r chi.Router) {
			r.Get("/", s.listVendors)
			r.Post("/", s.registerVendor)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getVendor)
				r.Delete("/", s.deleteVendor)
				r.Get("/status", s.vendorStatus)
				r.Get("/meals", s.vendorMeals)
				r.Get("/menu", s.vendorMenu)
				r.Post("/scrape", s.forceRescrape)
				r.Post("/metadata", s.refreshMetadata)
			})
		})
		r.Route("/meals", func(r chi.Router) {
			r.Get("/", s.listMeals)
			r.Delete("/{id}", s.deleteMeal)
		})
	})

	s.router = r
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
				)
				writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"code":"timeout","error":"request timed out"}`)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}

// errorStatus maps the error taxonomy onto an HTTP status and code. Timeout
// is checked before scrape failure since a timed-out scrape matches both.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, menu.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, menu.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, menu.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, menu.ErrTimeout):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.Is(err, menu.ErrScrapeFailed):
		return http.StatusInternalServerError, codeScrapeFailed
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	switch code {
	case codeInternal:
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	case codeTimeout:
		msg = menu.ErrTimeout.Error()
	case codeScrapeFailed:
		s.logger.Warn("scrape failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, msg)
}
