package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ModelLister is the part of the LLM client the models endpoint needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type ModelsHandler struct {
	llm    ModelLister
	logger *zap.Logger
}

func NewModelsHandler(llm ModelLister, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		llm:    llm,
		logger: logger,
	}
}

// List returns installed models. ListModels degrades to a default list when
// the backend is unreachable, so this endpoint never fails outright.
func (h *ModelsHandler) List(c *gin.Context) {
	models, err := h.llm.ListModels(c.Request.Context())
	if err != nil {
		h.logger.Warn("Model listing degraded to defaults", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
