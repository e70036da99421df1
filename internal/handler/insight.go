package handler

import (
	"net/http"

	"backend/internal/gemini"
	"backend/internal/retry"
	"backend/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InsightHandler interface {
	Generate(c *gin.Context)
	Stream(c *gin.Context)
}

type insightHandler struct {
	insights *scheduler.InsightScheduler
	logger   *zap.Logger
}

func NewInsightHandler(insights *scheduler.InsightScheduler, logger *zap.Logger) InsightHandler {
	return &insightHandler{insights: insights, logger: logger}
}

// Generate handles POST /api/insights/generate.
func (h *insightHandler) Generate(c *gin.Context) {
	text, err := h.insights.MaybeGenerate(c.Request.Context())
	if err != nil {
		if retry.IsRetryableStatus(gemini.StatusCode(err)) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model is busy — please try again in a minute."})
			return
		}
		h.logger.Error("Insight generation request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insight"})
		return
	}
	if text == "" {
		c.JSON(http.StatusOK, gin.H{"message": "Insight not generated — already running or not enough new submissions."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight_text": text})
}

// Stream handles GET /api/insights/stream, forwarding text fragments as they
// arrive. A client disconnect stops delivery; the scheduler itself decides
// whether the run persists (only ever the complete text).
func (h *insightHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")

	var wroteAny bool
	_, err := h.insights.StreamInsight(c.Request.Context(), func(fragment string) error {
		if _, werr := c.Writer.WriteString(fragment); werr != nil {
			return werr
		}
		c.Writer.Flush()
		wroteAny = true
		return nil
	})
	if err != nil {
		if wroteAny {
			// Headers are gone; all we can do is log the interruption.
			h.logger.Warn("Insight stream interrupted", zap.Error(err))
			return
		}
		if retry.IsRetryableStatus(gemini.StatusCode(err)) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model is busy — please try again in a minute."})
			return
		}
		h.logger.Error("Insight stream failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insight"})
		return
	}
	if !wroteAny {
		c.String(http.StatusOK, "No insight generated — already running or not enough new submissions.")
	}
}
