package handlers

import (
	"net/http"
	"strings"
	"time"

	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
)

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// RequestLogger logs one line per request once the response is written.
func RequestLogger(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			l.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", requestID(r),
			)
		})
	}
}

// CORS lets browser clients call the API. ETag is exposed so part uploads
// made from the same origin can read it.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins = append(origins, strings.TrimRight(o, "/"))
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"ETag", "X-Request-Id"},
		MaxAge:         300,
	})
}
