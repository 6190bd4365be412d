package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quietriver/reframe/backend/internal/handler/live"
	reflectHandler "github.com/quietriver/reframe/backend/internal/handler/reflect"
	sessionHandler "github.com/quietriver/reframe/backend/internal/handler/session"
	"github.com/quietriver/reframe/backend/internal/handler/stream"
	"github.com/quietriver/reframe/backend/internal/middleware"
	reflectionService "github.com/quietriver/reframe/backend/internal/service/reflection"
	sessionService "github.com/quietriver/reframe/backend/internal/service/session"
	"github.com/quietriver/reframe/backend/pkg/logger"
	"github.com/quietriver/reframe/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(store sessionService.Store, runner *reflectionService.Runner, jwtSecret string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	reflectH := reflectHandler.New(runner)
	sessionH := sessionHandler.New(store)
	streamH := stream.New(runner, log)
	liveH := live.New(runner, log)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := store.Ping(r.Context()); err != nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(middleware.Auth(jwtSecret))

			reflectH.RegisterRoutes(authed)
			sessionH.RegisterRoutes(authed)
			liveH.RegisterRoutes(authed)

			authed.Get("/reflect/stream", streamH.HandleStreamRequest)
		})
	})

	return r
}
