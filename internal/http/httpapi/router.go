package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/toukir-bd/ImVeo/internal/http/handlers"
	"github.com/toukir-bd/ImVeo/internal/infra"
	"github.com/toukir-bd/ImVeo/internal/middleware"
)

// Options carries the cross-cutting pieces the router wires around the app.
type Options struct {
	Logger          infra.Logger
	CountryLookup   middleware.CountryLookup
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Country(opts.CountryLookup))
	r.Use(middleware.Logger(opts.Logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	r.Get("/", app.Index)
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.GenerationStart)
		} else {
			r.Post("/", app.GenerationStart)
		}
		r.Get("/current", app.GenerationState)
		r.Post("/dismiss", app.GenerationDismiss)
	})

	return r
}
