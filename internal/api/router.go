package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/minefleet/minefleet/internal/bots"
	"github.com/minefleet/minefleet/internal/config"
	"github.com/minefleet/minefleet/internal/storage/sqlite"
	"github.com/minefleet/minefleet/internal/websocket"
	"github.com/minefleet/minefleet/pkg/logger"
)

// Router builds the HTTP routing table
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
	config   *config.Config
}

// NewRouter creates a new API router
func NewRouter(manager *bots.Manager, profileStorage *sqlite.ProfileStorage, chatLogStorage *sqlite.ChatLogStorage, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Router {
	return &Router{
		handler:  NewHandler(manager, profileStorage, chatLogStorage, cfg, log),
		wsServer: wsServer,
		config:   cfg,
	}
}

// Routes returns the HTTP handler with all routes registered
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(r.config.Server.CORSAllowedOrigins))

	router.Route("/api", func(api chi.Router) {
		api.Route("/profiles", func(profiles chi.Router) {
			profiles.Get("/", r.handler.GetProfiles)
			profiles.Post("/", r.handler.CreateProfile)
			profiles.Delete("/{id}", r.handler.DeleteProfile)
		})

		api.Route("/bots", func(b chi.Router) {
			b.Get("/", r.handler.GetAllBots)
			b.Post("/connect", r.handler.ConnectBot)
			b.Post("/{id}/disconnect", r.handler.DisconnectBot)
			b.Post("/{id}/reconnect", r.handler.ReconnectBot)
			b.Post("/{id}/chat", r.handler.SendChat)
			b.Get("/{id}/status", r.handler.GetBotStatus)
			b.Get("/{id}/logs", r.handler.GetBotLogs)
		})
	})

	router.Get("/ws", r.wsServer.HandleConnection)

	return router
}

// corsMiddleware sets CORS headers for the configured origins
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			origin := req.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
