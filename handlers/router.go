package handlers

import (
	"time"

	logger "github.com/Yulian302/lfusys-services-uploads/logging"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const requestTimeout = 60 * time.Second

// Routers wires the upload API, health probes and the shared middleware chain.
func Routers(uploads *UploadsHandler, health *HealthHandler, allowedOrigins []string, l logger.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(l))
	r.Use(middleware.Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/files", uploads.ListFiles)
		r.Post("/files/create-multipart", uploads.CreateMultipart)
		r.Post("/files/complete-multipart", uploads.CompleteMultipart)
		r.Post("/files/abort-multipart", uploads.AbortMultipart)
	})

	return r
}
