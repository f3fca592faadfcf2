package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"specimenreview/auth"
	"specimenreview/metrics"
	"specimenreview/specimen"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// HandlerOptions configures the HTTP surface around a Service.
type HandlerOptions struct {
	Log *logrus.Logger
	// Verifier enables bearer auth on /api routes when non-nil.
	Verifier       auth.Verifier
	AllowedOrigins []string
	Metrics        *metrics.Collector
	MetricsPath    string
}

type handler struct {
	svc      *Service
	log      *logrus.Logger
	validate *validator.Validate
}

// patchRequest is the PATCH /api/mock/records body.
type patchRequest struct {
	ID     string  `json:"id" validate:"required"`
	Status *string `json:"status" validate:"omitempty,oneof=pending approved flagged needs_revision"`
	Note   *string `json:"note"`
}

// NewHandler builds the chi router serving the mock record API.
func NewHandler(svc *Service, opts HandlerOptions) http.Handler {
	log := opts.Log
	if log == nil {
		log = svc.log
	}
	h := &handler{svc: svc, log: log, validate: validator.New()}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, opts.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/mock", func(r chi.Router) {
		if opts.Verifier != nil {
			r.Use(auth.RequireBearer(opts.Verifier))
		}
		r.Get("/records", h.listRecords)
		r.Patch("/records", h.patchRecord)
	})

	return r
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) patchRecord(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validationMessage(err)})
		return
	}

	updates := specimen.Updates{Note: req.Note}
	if req.Status != nil {
		status := specimen.Status(*req.Status)
		updates.Status = &status
	}

	rec, err := h.svc.Patch(r.Context(), req.ID, updates)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reviewer, ok := auth.ReviewerFromContext(r.Context()); ok {
		h.log.WithFields(logrus.Fields{"id": rec.ID, "reviewer": reviewer}).Debug("patch attributed")
	}
	writeJSON(w, http.StatusOK, rec)
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvalidPatch):
		code = http.StatusBadRequest
	case errors.Is(err, ErrInjectedFailure):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	entry := h.log.WithError(err).WithField("request_id", RequestIDFromContext(r.Context()))
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Field() {
		case "ID":
			return "id is required"
		case "Status":
			return "status must be one of pending, approved, flagged, needs_revision"
		}
	}
	return "invalid request"
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
		}
		h.log.WithFields(fields).Info("http request")
	})
}
