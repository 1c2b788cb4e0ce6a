package transport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"market-live/auth"
	"market-live/domain"
	apperrors "market-live/errors"
	"market-live/services"
)

// Server owns the gin engine and wires the HTTP surface: auth, the chat
// request/response endpoints, the notification pull path and the
// WebSocket upgrade.
type Server struct {
	engine        *gin.Engine
	auth          services.IAuthService
	chats         services.IChatService
	notifications services.INotificationService
	log           *slog.Logger
}

func NewServer(
	authService services.IAuthService,
	chatService services.IChatService,
	notificationService services.INotificationService,
	wsHandler gin.HandlerFunc,
	log *slog.Logger,
) *Server {
	server := &Server{
		engine:        gin.New(),
		auth:          authService,
		chats:         chatService,
		notifications: notificationService,
		log:           log,
	}
	server.engine.Use(gin.Recovery())

	server.engine.POST("/register", server.register)
	server.engine.POST("/login", server.login)

	protected := server.engine.Group("/", auth.Middleware())
	protected.GET("/ws", wsHandler)

	protected.POST("/chats/direct", server.createDirect)
	protected.POST("/chats/group", server.createGroup)
	protected.GET("/chats", server.listChats)
	protected.PATCH("/chats/:chatID", server.renameChat)
	protected.GET("/chats/:chatID/messages", server.history)
	protected.DELETE("/chats/:chatID/messages", server.clearHistory)
	protected.POST("/chats/:chatID/read", server.markRead)
	protected.GET("/chats/:chatID/unread", server.unreadForChat)
	protected.POST("/chats/:chatID/participants", server.addParticipant)
	protected.DELETE("/chats/:chatID/participants/:userID", server.removeParticipant)
	protected.POST("/chats/:chatID/leave", server.leaveChat)

	protected.GET("/unread", server.totalUnread)
	protected.GET("/notifications", server.listNotifications)
	protected.POST("/notifications/:notificationID/read", server.markNotificationRead)

	return server
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(apperrors.MapToHTTPStatus(err), gin.H{"error": err.Error()})
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, userID, err := s.auth.Register(req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user_id": userID})
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, userID, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID})
}

func (s *Server) createDirect(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, err := s.chats.CreateDirect(auth.UserID(c), req.PeerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (s *Server) createGroup(c *gin.Context) {
	var req struct {
		Name    string   `json:"name" binding:"required"`
		Members []string `json:"members" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, err := s.chats.CreateGroup(auth.UserID(c), req.Members, req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (s *Server) listChats(c *gin.Context) {
	chats, err := s.chats.ListChats(auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (s *Server) chatID(c *gin.Context) (domain.ChatID, bool) {
	chatID, err := uuid.Parse(c.Param("chatID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return uuid.Nil, false
	}
	return chatID, true
}

func (s *Server) renameChat(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.chats.Rename(domain.RenameCommand{ChatID: chatID, ActorID: auth.UserID(c), Name: req.Name})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) history(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	var cursor *string
	if raw := c.Query("cursor"); raw != "" {
		cursor = &raw
	}
	messages, next, err := s.chats.History(domain.GetMessagesCommand{
		ChatID: chatID,
		UserID: auth.UserID(c),
		Cursor: cursor,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "cursor": next})
}

func (s *Server) clearHistory(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	if err := s.chats.ClearHistory(chatID, auth.UserID(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markRead(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	err := s.chats.MarkRead(c.Request.Context(), domain.MarkReadCommand{ChatID: chatID, UserID: auth.UserID(c)})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) unreadForChat(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	count, err := s.notifications.UnreadForChat(chatID, auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (s *Server) addParticipant(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.chats.AddParticipant(c.Request.Context(), domain.AddParticipantCommand{
		ChatID:  chatID,
		ActorID: auth.UserID(c),
		UserID:  req.UserID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeParticipant(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	err := s.chats.RemoveParticipant(c.Request.Context(), domain.RemoveParticipantCommand{
		ChatID:  chatID,
		ActorID: auth.UserID(c),
		UserID:  c.Param("userID"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) leaveChat(c *gin.Context) {
	chatID, ok := s.chatID(c)
	if !ok {
		return
	}
	err := s.chats.Leave(c.Request.Context(), domain.LeaveCommand{ChatID: chatID, UserID: auth.UserID(c)})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) totalUnread(c *gin.Context) {
	total, err := s.notifications.TotalUnread(auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": total})
}

func (s *Server) listNotifications(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	notifications, err := s.notifications.List(auth.UserID(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (s *Server) markNotificationRead(c *gin.Context) {
	notificationID, err := uuid.Parse(c.Param("notificationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := s.notifications.MarkRead(auth.UserID(c), notificationID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
