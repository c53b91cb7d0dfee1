// Package rest serves the HTTP collaborators of the socket: auth, chats, message history and ops endpoints.
package rest

import (
	"log/slog"
	"net/http"

	"chat-sync/auth"
	"chat-sync/services"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Auth     services.IAuthService
	Chats    services.IChatService
	Messages services.IMessageService
	Online   OnlineDirectory
	Monitor  Snapshotter
	Tokens   *auth.TokenManager
	Metrics  http.Handler
	Socket   http.Handler
	Log      *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(d.Log), cors())

	h := handlers{
		auth:     d.Auth,
		chats:    d.Chats,
		messages: d.Messages,
		online:   d.Online,
		monitor:  d.Monitor,
		log:      d.Log,
	}

	// The socket authenticates its own handshake.
	router.GET("/ws", gin.WrapH(d.Socket))
	router.GET("/metrics", gin.WrapH(d.Metrics))

	public := router.Group("/auth", enforceJSON())
	public.POST("/register", h.register)
	public.POST("/login", h.login)
	public.POST("/refresh", h.refresh)

	api := router.Group("/", auth.RequireAuth(d.Tokens), enforceJSON())
	api.POST("/chats", h.createChat)
	api.GET("/chats", h.getChats)
	api.GET("/chats/:id", h.getChat)
	api.GET("/messages", h.getMessages)
	api.POST("/messages/read", h.markRead)
	api.GET("/users/online", h.onlineUsers)

	debug := router.Group("/debug", auth.RequireAuth(d.Tokens))
	debug.GET("/stats", h.debugStats)

	return router
}
