package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"diary-assistant/assistant"
	apperrors "diary-assistant/errors"
	"diary-assistant/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// storeStatus maps an assistant storage error to an HTTP status.
func storeStatus(err error) int {
	switch {
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case apperrors.IsModelUnavailable(err):
		return http.StatusServiceUnavailable
	case apperrors.IsStorePersistence(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// EntriesHandler covers the diary and knowledge base endpoints.
type EntriesHandler struct {
	assistant *assistant.Assistant
	pdf       *services.PDFService
	logger    *zap.Logger
}

type DiaryRequest struct {
	Content string `json:"content" form:"content"`
	Date    string `json:"date" form:"date"`
}

type KnowledgeRequest struct {
	Content string `json:"content" form:"content"`
	Source  string `json:"source" form:"source"`
}

func NewEntriesHandler(assistant *assistant.Assistant, pdf *services.PDFService, logger *zap.Logger) *EntriesHandler {
	return &EntriesHandler{
		assistant: assistant,
		pdf:       pdf,
		logger:    logger,
	}
}

func (h *EntriesHandler) AddDiaryEntry(c *gin.Context) {
	var req DiaryRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.assistant.AddDiaryEntry(c.Request.Context(), req.Content, req.Date)
	if err != nil {
		h.logger.Error("Failed to add diary entry", zap.Error(err))
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}

	// The entry must survive a crash once the user sees the confirmation.
	if err := h.assistant.Flush(c.Request.Context()); err != nil {
		h.logger.Error("Failed to flush vector store", zap.Error(err))
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *EntriesHandler) AddKnowledge(c *gin.Context) {
	var req KnowledgeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.assistant.AddKnowledgeDocument(c.Request.Context(), req.Content, req.Source)
	if err != nil {
		h.logger.Error("Failed to add knowledge document", zap.Error(err))
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// UploadKnowledgePDF accepts a PDF upload, extracts its text and stores it
// as a knowledge document under the original filename.
func (h *EntriesHandler) UploadKnowledgePDF(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File upload error"})
		return
	}

	filename := sanitizeFilename(file.Filename)
	if filename == "" || strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please upload a PDF file"})
		return
	}

	tmpDir, err := os.MkdirTemp("", "diary-upload-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not save file"})
		return
	}
	defer os.RemoveAll(tmpDir)

	dst := filepath.Join(tmpDir, filename)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not save file"})
		return
	}

	text, err := h.pdf.ExtractText(dst)
	if err != nil {
		h.logger.Error("Failed to extract PDF text", zap.Error(err), zap.String("filename", filename))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not extract text from PDF"})
		return
	}

	msg, err := h.assistant.AddKnowledgeDocument(c.Request.Context(), text, filename)
	if err != nil {
		h.logger.Error("Failed to store PDF knowledge", zap.Error(err))
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := h.assistant.Flush(c.Request.Context()); err != nil {
		h.logger.Error("Failed to flush vector store", zap.Error(err))
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *EntriesHandler) DailySummary(c *gin.Context) {
	answer := h.assistant.GetDailySummaryAndPlan(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// Sanitize the filename to prevent directory traversal.
func sanitizeFilename(filename string) string {
	sanitized := strings.Trim(filepath.Base(filename), " .")
	sanitized = strings.ReplaceAll(sanitized, "..", "")
	reg := regexp.MustCompile(`[^a-zA-Z0-9._\s-]`)
	sanitized = reg.ReplaceAllString(sanitized, "")
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}
	return sanitized
}
