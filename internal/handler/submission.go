package handler

import (
	"context"
	"net/http"
	"time"

	"backend/internal/models"
	"backend/internal/moderation"
	"backend/internal/repository"
	"backend/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// triggerTimeout bounds the detached post-submission generation attempts,
// which run on a background context after the response has been sent.
const triggerTimeout = 5 * time.Minute

type SubmissionHandler interface {
	Submit(c *gin.Context)
}

type submissionHandler struct {
	subRepo  repository.SubmissionRepository
	moderate *moderation.Service
	themes   *scheduler.ThemeScheduler
	insights *scheduler.InsightScheduler
	logger   *zap.Logger
}

func NewSubmissionHandler(subRepo repository.SubmissionRepository, moderate *moderation.Service,
	themes *scheduler.ThemeScheduler, insights *scheduler.InsightScheduler, logger *zap.Logger) SubmissionHandler {
	return &submissionHandler{
		subRepo:  subRepo,
		moderate: moderate,
		themes:   themes,
		insights: insights,
		logger:   logger,
	}
}

type submitRequest struct {
	Responses    models.FixedAnswers    `json:"responses" binding:"required"`
	AdaptiveData models.AdaptiveAnswers `json:"adaptive_data" binding:"omitempty,max=2,dive"`
	ConsentGiven bool                   `json:"consent_given"`
}

// Submit handles POST /api/submissions.
func (h *submissionHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission", "details": err.Error()})
		return
	}

	texts := h.moderate.CollectFreeText(req.Responses, req.AdaptiveData)
	state := h.moderate.Screen(c.Request.Context(), texts)

	sub := &models.Submission{
		ID:           uuid.NewString(),
		Responses:    req.Responses,
		AdaptiveData: req.AdaptiveData,
		ConsentGiven: req.ConsentGiven,
		ContentSafe:  state,
	}
	if err := h.subRepo.SaveSubmission(c.Request.Context(), sub); err != nil {
		h.logger.Error("Failed to save submission", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save submission"})
		return
	}

	if state == models.SafetyPending && len(texts) > 0 {
		h.moderate.RetryModeration(sub.ID, texts)
	}

	// Fire-and-forget: every submission nudges both generation schedulers.
	// They gate themselves and drop the trigger when a run is in flight.
	go h.triggerGeneration()

	c.JSON(http.StatusCreated, gin.H{
		"id":           sub.ID,
		"created_at":   sub.CreatedAt,
		"content_safe": state.String(),
	})
}

func (h *submissionHandler) triggerGeneration() {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		if _, err := h.themes.MaybeExtract(ctx); err != nil {
			h.logger.Warn("Post-submission theme extraction failed", zap.Error(err))
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		if _, err := h.insights.MaybeGenerate(ctx); err != nil {
			h.logger.Warn("Post-submission insight generation failed", zap.Error(err))
		}
	}()
	<-done
	<-done
}
