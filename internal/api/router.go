package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/query", apiHandler.QueryHandler)
		r.Post("/upload", apiHandler.UploadHandler)

		r.Post("/db/connect", apiHandler.DBConnectHandler)
		r.Post("/db/disconnect", apiHandler.DBDisconnectHandler)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/documents", apiHandler.ListDocsHandler)
			r.Get("/db/schema", apiHandler.DBSchemaHandler)
			r.Post("/reset", apiHandler.ResetSessionHandler)
		})
	})

	// Uploaded documents are served so citations can link back to them.
	fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(apiHandler.uploadDir)))
	r.Get("/uploads/*", fileServer.ServeHTTP)

	return r
}
