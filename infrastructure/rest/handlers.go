package rest

import (
	"log/slog"
	"net/http"
	"strconv"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/services"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// OnlineDirectory lists connected users, see runtime.Presence.
type OnlineDirectory interface {
	OnlineUsers() []domain.UserID
}

// Snapshotter serves the last monitoring sample, see observability.Monitor.
type Snapshotter interface {
	Latest() observability.Snapshot
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	Token string `json:"token"`
}

type handlers struct {
	auth     services.IAuthService
	chats    services.IChatService
	messages services.IMessageService
	online   OnlineDirectory
	monitor  Snapshotter
	log      *slog.Logger
}

func (h handlers) fail(c *gin.Context, err error) {
	if errors.CodeOf(err) == errors.CodeInternal {
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	abort(c, err)
}

// bind decodes and validates the body into out.
func (h handlers) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		h.fail(c, errors.Validation("%v", err))
		return false
	}
	if err := auth.Validate(out); err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

func (h handlers) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Validation("%v", err))
		return
	}
	session, err := h.auth.Register(req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h handlers) login(c *gin.Context) {
	var req LoginRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// refresh accepts the token in the body or as a bearer header.
func (h handlers) refresh(c *gin.Context) {
	var req RefreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, errors.Validation("%v", err))
			return
		}
	}
	if req.Token == "" {
		req.Token = auth.TokenFromRequest(c.Request)
	}
	token, err := h.auth.Refresh(req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h handlers) createChat(c *gin.Context) {
	var req services.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Validation("%v", err))
		return
	}
	chat, created, err := h.chats.CreateChat(c.Request.Context(), auth.UserIDFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"chat": chat, "created": created})
}

// getChats lists the chats of the caller. A userId query naming someone else is refused.
func (h handlers) getChats(c *gin.Context) {
	userID := auth.UserIDFrom(c)
	if requested := c.Query("userId"); requested != "" && domain.UserID(requested) != userID {
		h.fail(c, errors.ErrForbidden)
		return
	}
	page, err := pageFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.chats.GetChats(c.Request.Context(), userID, services.ChatFilter{Search: c.Query("search")}, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h handlers) getChat(c *gin.Context) {
	chat, err := h.chats.GetChat(c.Request.Context(), auth.UserIDFrom(c), domain.ChatID(c.Param("id")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h handlers) getMessages(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		h.fail(c, errors.Validation("chatId is required"))
		return
	}
	if sortBy := c.Query("sortBy"); sortBy != "" && sortBy != "createdAt" {
		h.fail(c, errors.Validation("unsupported sortBy %q", sortBy))
		return
	}
	page, err := pageFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.messages.List(c.Request.Context(), auth.UserIDFrom(c), domain.ChatID(chatID), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h handlers) markRead(c *gin.Context) {
	var req services.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Validation("%v", err))
		return
	}
	changed, err := h.messages.MarkRead(c.Request.Context(), auth.UserIDFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": changed})
}

func (h handlers) onlineUsers(c *gin.Context) {
	online := h.online.OnlineUsers()
	c.JSON(http.StatusOK, gin.H{"users": online, "count": len(online)})
}

func (h handlers) debugStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Latest())
}

// pageFrom reads page, limit and orderBy. Missing values fall back to the defaults.
func pageFrom(c *gin.Context) (domain.Page, error) {
	page := domain.Page{}
	for name, dst := range map[string]*int{"page": &page.Number, "limit": &page.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return domain.Page{}, errors.Validation("%s must be a positive integer", name)
		}
		*dst = v
	}
	order := domain.SortOrder(c.DefaultQuery("orderBy", string(domain.Desc)))
	if !lo.Contains([]domain.SortOrder{domain.Asc, domain.Desc}, order) {
		return domain.Page{}, errors.Validation("orderBy must be asc or desc")
	}
	page.Order = order
	return page.Normalize(), nil
}
