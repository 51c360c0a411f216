package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	authmw "github.com/jermoo/realms-core/internal/middleware"
	"github.com/jermoo/realms-core/internal/token"
)

// NewRouter assembles the chi router for the /v1/realms surface: request
// logging, panic recovery, security headers, and CORS ahead of the
// bearer-auth layer.
func NewRouter(handlers *Handlers, verifier *token.Verifier) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(authmw.SecurityHeaders)
	r.Use(authmw.MaxBodySizeWithOverrides(authmw.DefaultMaxBodySize, nil))

	origins := []string{"http://localhost:5173", "http://localhost:3000"}
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		origins = strings.Split(env, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Route("/v1/realms", func(r chi.Router) {
		r.Use(BearerAuth(verifier))
		r.Get("/", handlers.List)
		r.Get("/{id}", handlers.Get)
		r.Put("/{id}", handlers.Put)
		r.Delete("/{id}", handlers.Delete)
	})

	return r
}
