package handler

import (
	"net/http"

	"backend/internal/gemini"
	"backend/internal/retry"
	"backend/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ThemeHandler interface {
	Extract(c *gin.Context)
}

type themeHandler struct {
	themes *scheduler.ThemeScheduler
	logger *zap.Logger
}

func NewThemeHandler(themes *scheduler.ThemeScheduler, logger *zap.Logger) ThemeHandler {
	return &themeHandler{themes: themes, logger: logger}
}

// Extract handles POST /api/themes/extract.
func (h *themeHandler) Extract(c *gin.Context) {
	themes, err := h.themes.MaybeExtract(c.Request.Context())
	if err != nil {
		if retry.IsRetryableStatus(gemini.StatusCode(err)) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model is busy — please try again in a minute."})
			return
		}
		h.logger.Error("Theme extraction request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to extract themes"})
		return
	}
	if themes == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Theme extraction skipped — already running or not enough new submissions."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"themes": themes})
}
