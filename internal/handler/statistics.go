package handler

import (
	"net/http"
	"sort"

	"backend/internal/aggregate"
	"backend/internal/models"
	"backend/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatisticsHandler interface {
	GetStatistics(c *gin.Context)
}

type statisticsHandler struct {
	subRepo    repository.SubmissionRepository
	summarizer *aggregate.Summarizer
	logger     *zap.Logger
}

func NewStatisticsHandler(subRepo repository.SubmissionRepository, summarizer *aggregate.Summarizer, logger *zap.Logger) StatisticsHandler {
	return &statisticsHandler{subRepo: subRepo, summarizer: summarizer, logger: logger}
}

type pressureBreakdown struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
	Pct   int    `json:"pct"`
}

// GetStatistics handles GET /api/statistics. The summary comes through the
// TTL cache to bound load from repeated reads.
func (h *statisticsHandler) GetStatistics(c *gin.Context) {
	summary, err := h.summarizer.CachedSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute dataset summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve statistics"})
		return
	}

	counts, err := h.subRepo.GetPressureCounts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get pressure counts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve statistics"})
		return
	}

	pressures := make([]pressureBreakdown, 0, len(counts))
	for key, count := range counts {
		label := models.PressureLabels[key]
		if label == "" {
			label = key
		}
		pct := 0
		if summary.TotalResponses > 0 {
			pct = int(float64(count)/float64(summary.TotalResponses)*100 + 0.5)
		}
		pressures = append(pressures, pressureBreakdown{Key: key, Label: label, Count: count, Pct: pct})
	}
	sort.Slice(pressures, func(i, j int) bool { return pressures[i].Count > pressures[j].Count })

	c.JSON(http.StatusOK, gin.H{
		"total":      summary.TotalResponses,
		"avg_change": summary.AvgChange,
		"pressures":  pressures,
		"summary":    summary,
	})
}
