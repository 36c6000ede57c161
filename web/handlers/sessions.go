package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"diary-assistant/database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionsHandler struct {
	store  *database.HistoryStore
	logger *zap.Logger
}

type RenameRequest struct {
	Name string `json:"name" form:"name"`
}

func NewSessionsHandler(store *database.HistoryStore, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		store:  store,
		logger: logger,
	}
}

func (h *SessionsHandler) List(c *gin.Context) {
	sessions, err := h.store.GetSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *SessionsHandler) Create(c *gin.Context) {
	var req RenameRequest
	_ = c.ShouldBind(&req)

	session, err := h.store.CreateSession(c.Request.Context(), req.Name)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create session"})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionsHandler) Messages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	messages, err := h.store.GetMessagesBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *SessionsHandler) Rename(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	var req RenameRequest
	if err := c.ShouldBind(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	if err := h.store.RenameSession(c.Request.Context(), sessionID, req.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logger.Error("Failed to rename session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not rename session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session renamed"})
}

func (h *SessionsHandler) ClearMessages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	if err := h.store.ClearSessionMessages(c.Request.Context(), sessionID); err != nil {
		h.logger.Error("Failed to clear session messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not clear messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages cleared"})
}
