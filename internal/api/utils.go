package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"canvas-relay/internal/api/middleware"
	"canvas-relay/internal/queue"

	"go.uber.org/zap"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (s *APIServer) corsConfig() middleware.CORSConfig {
	origins := []string{"*"}
	if s.relay != nil && len(s.relay.AllowedOrigins()) > 0 {
		origins = s.relay.AllowedOrigins()
	}
	return middleware.CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With", "Authorization"},
		AllowCredentials: false,
	}
}

// MakeHTTPHandleFunc adapts f into a handler that runs on the request queue,
// renders returned errors as JSON and applies CORS and request logging.
// authMiddleware runs between the common middleware and f.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		job := queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		if !s.requestQueueManager.EnqueueJob(job) {
			WriteJSON(w, http.StatusServiceUnavailable, ApiError{Error: "Server shutting down"})
			return
		}

		if err := <-errc; err != nil {
			writeError(w, r, err)
		}
	}

	middlewares := []middleware.Middleware{
		middleware.CORS(s.corsConfig()),
		middleware.Logging(),
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if len(authMiddleware) > 0 {
			middleware.Chain(baseHandler, authMiddleware...)(w, r)
			return
		}
		baseHandler(w, r)
	}

	return middleware.Chain(finalHandler, middlewares...)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.ErrorLog != nil {
			zap.L().Warn("request failed",
				zap.String("path", r.URL.Path),
				zap.Int("status", httpErr.StatusCode),
				zap.Error(httpErr.ErrorLog))
		}
		WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
		return
	}
	zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
}
