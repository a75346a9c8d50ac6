package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/TemirB/order-service/internal/application/service"
	"github.com/TemirB/order-service/internal/domain"
	"github.com/TemirB/order-service/internal/observability"
)

//go:generate mockgen -source httpapi.go -destination=httpapi_mock_test.go -package=httpapi

const maxBodyBytes = 1 << 20

type OrderService interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.OrderResponse, error)
	GetOrdersWithStats(ctx context.Context) (domain.OrderResponse, service.LookupStats, error)
	GetOrderByIDWithStats(ctx context.Context, id int64) (domain.OrderResponse, service.LookupStats, error)
	UpdateOrder(ctx context.Context, id int64, patch domain.OrderPatch) (domain.OrderResponse, error)
	DeleteOrder(ctx context.Context, id int64) (domain.DeleteResponse, error)
}

type Server struct {
	service OrderService
	router  chi.Router
	logger  *zap.Logger
	metrics observability.Metrics
}

// createRequest is the POST /orders body.
type createRequest struct {
	OrderItems *domain.Order `json:"orderItems"`
}

func New(service OrderService, logger *zap.Logger, metrics observability.Metrics, corsOrigins []string) *Server {
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	s := &Server{
		service: service,
		router:  chi.NewRouter(),
		logger:  logger,
		metrics: metrics,
	}
	s.routes(corsOrigins)
	return s
}

func (s *Server) routes(corsOrigins []string) {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	s.router.Use(
		middleware.RequestID,
		middleware.RealIP,
		AccessLog(s.logger),
		middleware.Recoverer,
		middleware.Compress(5),
		cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"Server-Timing", "X-Source", "X-Cache-Time", "X-DB-Time"},
			MaxAge:         300,
		}),
		ServerTimingApp(s.metrics),
	)

	s.router.Route("/orders", func(r chi.Router) {
		r.Post("/", s.createOrder)
		r.Get("/", s.getOrders)
		r.Get("/{id}", s.getOrder)
		r.Patch("/{id}", s.updateOrder)
		r.Delete("/{id}", s.deleteOrder)
	})
}

// Mount attaches an extra handler, e.g. metrics or health probes.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !s.decode(w, body, &req) {
		return
	}
	if req.OrderItems == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "orderItems is required")
		return
	}
	if err := req.OrderItems.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	t0 := time.Now()
	resp, err := s.service.CreateOrder(r.Context(), *req.OrderItems)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	observability.AppendServerTiming(w, "db_write", msSince(t0), "")

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	resp, st, err := s.service.GetOrdersWithStats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	observability.WriteLookupHeaders(w, string(st.Source), st.CacheMs, st.DBMs)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	resp, st, err := s.service.GetOrderByIDWithStats(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	observability.WriteLookupHeaders(w, string(st.Source), st.CacheMs, st.DBMs)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var patch domain.OrderPatch
	if !s.decode(w, body, &patch) {
		return
	}
	if err := domain.RejectNullFields(body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", validationMessage(err))
		return
	}

	t0 := time.Now()
	resp, err := s.service.UpdateOrder(r.Context(), id, patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	observability.AppendServerTiming(w, "db_write", msSince(t0), "")

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	resp, err := s.service.DeleteOrder(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large")
			return nil, false
		}
		s.logger.Error("Error while reading request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "bad_request", "bad json")
		return nil, false
	}
	return body, true
}

func (s *Server) decode(w http.ResponseWriter, body []byte, dst any) bool {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		s.logger.Error(
			"Error while decoding JSON",
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, "bad_request", "bad json")
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var oe *domain.OrderError
	if !errors.As(err, &oe) {
		s.logger.Error("unexpected service error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	writeError(w, statusFor(oe.Kind), string(oe.Kind), oe.Message)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNoFieldsProvided:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Validation failed (numeric string is expected)")
		return 0, false
	}
	return id, true
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
		return false
	}
	return true
}

func validationMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

type errorBody struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{
		Success:    false,
		StatusCode: status,
		Error:      kind,
		Message:    message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }
