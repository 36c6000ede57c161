package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"diary-assistant/assistant"
	"diary-assistant/database"
	"diary-assistant/web/format"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatHandler struct {
	assistant *assistant.Assistant
	store     *database.HistoryStore
	logger    *zap.Logger
}

type ChatRequest struct {
	Message  string `json:"message" form:"message"`
	Model    string `json:"model" form:"model"`
	Thinking bool   `json:"thinking" form:"thinking"`
}

type StreamData struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

func NewChatHandler(assistant *assistant.Assistant, store *database.HistoryStore, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		store:     store,
		logger:    logger,
	}
}

// SendMessage stores the user message and returns it. The client then opens
// the SSE stream to receive the assistant's answer.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Error("Failed to bind chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	sessionID := c.MustGet("sessionID").(uuid.UUID)

	userMessage, err := h.store.AppendMessage(c.Request.Context(), sessionID, "user", req.Message)
	if err != nil {
		h.logger.Error("Failed to save user message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not save message"})
		return
	}

	h.logger.Info("Processing chat message",
		zap.String("session_id", sessionID.String()),
		zap.String("message_id", userMessage.ID))

	c.JSON(http.StatusOK, userMessage)
}

// StreamResponse answers the given user message over SSE, one token at a
// time, and stores the final answer in the session history.
func (h *ChatHandler) StreamResponse(c *gin.Context) {
	userMessageID := c.Query("user_message_id")
	if userMessageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User message ID required"})
		return
	}

	sessionID := c.MustGet("sessionID").(uuid.UUID)

	model := c.Query("model")
	thinking := c.Query("thinking") == "true"

	ctx := c.Request.Context()

	messages, err := h.store.GetMessagesBySession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load messages"})
		return
	}

	var question string
	for i := range messages {
		if messages[i].ID == userMessageID {
			question = messages[i].Content
			break
		}
	}
	if question == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "User message not found"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	var writeMu sync.Mutex
	writeSSEData := func(data StreamData) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", jsonData); err != nil {
			return err
		}
		if flusher, ok := c.Writer.(http.Flusher); ok {
			flusher.Flush()
		}
		return nil
	}

	if err := writeSSEData(StreamData{Type: "connection_established"}); err != nil {
		return
	}

	answer := h.assistant.Query(ctx, question, assistant.QueryOptions{
		Model:        model,
		ThinkingMode: thinking,
		OnToken: func(token string) {
			if err := writeSSEData(StreamData{Type: "chunk", Content: token}); err != nil {
				h.logger.Debug("SSE client gone", zap.Error(err))
			}
		},
	})

	if _, err := h.store.AppendMessage(ctx, sessionID, "assistant", answer); err != nil {
		h.logger.Error("Failed to save assistant message", zap.Error(err))
	}

	if err := writeSSEData(StreamData{Type: "html", Content: format.RenderMarkdown(answer)}); err != nil {
		return
	}
	writeSSEData(StreamData{Type: "end"})
}
