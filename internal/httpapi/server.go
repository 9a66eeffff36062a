package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Backends() types.BackendReport
	Predict(ctx context.Context, req types.PredictRequest) (any, error)
	Preload(ctx context.Context, family types.Family, name string) (string, error)
	Unload(family types.Family, name string) error
	ClearCache(family types.Family, name string) error
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5, "application/json"))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models := svc.ListModels()
		if models == nil {
			models = []types.Model{}
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/backends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Backends())
	})

	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		req, err := decodePredict(r)
		if err != nil {
			status := http.StatusBadRequest
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				status = http.StatusRequestEntityTooLarge
			} else if errors.Is(err, errUnsupportedMedia) {
				status = http.StatusUnsupportedMediaType
			}
			writeJSONError(w, status, err.Error())
			logRequestEnd(r, lvl, "predict end", status, start, err)
			return
		}
		if lvl >= LevelDebug {
			zlog.Debug().Str("model", req.ModelName).Str("family", string(req.Family)).Int("input_bytes", len(req.Input)).Msg("predict start")
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		if predictTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, predictTimeout)
			defer tcancel()
		}
		out, err := svc.Predict(ctx, req)
		if err != nil {
			// client went away or the server is shutting down
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeServiceError(w, err)
			logRequestEnd(r, lvl, "predict end", status, start, err)
			return
		}
		writeJSON(w, http.StatusOK, types.PredictResponse{Result: out})
		logRequestEnd(r, lvl, "predict end", http.StatusOK, start, nil)
	})

	r.Post("/models/preload", func(w http.ResponseWriter, r *http.Request) {
		ref, ok := decodeRef(w, r)
		if !ok {
			return
		}
		op, err := svc.Preload(serverBaseCtx, ref.Family, ref.ModelName)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, types.PreloadResponse{OpID: op})
	})

	r.Post("/models/unload", func(w http.ResponseWriter, r *http.Request) {
		ref, ok := decodeRef(w, r)
		if !ok {
			return
		}
		if err := svc.Unload(ref.Family, ref.ModelName); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		ref, ok := decodeRef(w, r)
		if !ok {
			return
		}
		if err := svc.ClearCache(ref.Family, ref.ModelName); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		MaxAge:         300,
	}
}

// decodeRef reads a JSON ModelRef body, writing a 4xx on failure.
func decodeRef(w http.ResponseWriter, r *http.Request) (types.ModelRef, bool) {
	var ref types.ModelRef
	if !isJSON(r) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return ref, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return ref, false
	}
	ref.ModelName = strings.TrimSpace(ref.ModelName)
	if ref.ModelName == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return ref, false
	}
	return ref, true
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct != "" && strings.HasPrefix(strings.ToLower(ct), "application/json")
}
