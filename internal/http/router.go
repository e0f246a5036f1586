package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/ledgermatch/internal/http/matching"
	"github.com/MrJamesThe3rd/ledgermatch/internal/http/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/http/task"
	"github.com/MrJamesThe3rd/ledgermatch/internal/http/transaction"
)

type Options struct {
	AllowedOrigins []string
}

func New(
	opts Options,
	transactionsV1 *transaction.Handler,
	matchingV1 *matching.Handler,
	rulesV1 *rule.Handler,
	tasksV1 *task.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			transactionsV1.Routes(r)
		})

		r.Route("/matching", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			matchingV1.Routes(r)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			rulesV1.Routes(r)
		})

		r.Route("/tasks", tasksV1.Routes)
	})

	return router
}
