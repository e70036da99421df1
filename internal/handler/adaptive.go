package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"backend/internal/models"
	"backend/internal/prompt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var adaptiveQuestionsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"questions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"question_text":   {Type: genai.TypeString},
					"input_type":      {Type: genai.TypeString, Enum: []string{"single_choice", "scale", "short_text"}},
					"options":         {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"scale_min_label": {Type: genai.TypeString},
					"scale_max_label": {Type: genai.TypeString},
					"reasoning":       {Type: genai.TypeString},
				},
				Required: []string{"question_text", "input_type", "reasoning"},
			},
		},
	},
	Required: []string{"questions"},
}

// AdaptiveQuestion is one AI-designed follow-up question offered after the
// fixed answers are in.
type AdaptiveQuestion struct {
	QuestionText  string   `json:"question_text"`
	InputType     string   `json:"input_type"`
	Options       []string `json:"options,omitempty"`
	ScaleMinLabel string   `json:"scale_min_label,omitempty"`
	ScaleMaxLabel string   `json:"scale_max_label,omitempty"`
	Reasoning     string   `json:"reasoning"`
}

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error)
}

type datasetSummarizer interface {
	Summarize(ctx context.Context) (*models.DatasetSummary, error)
}

type AdaptiveHandler interface {
	GenerateQuestions(c *gin.Context)
}

type adaptiveHandler struct {
	ai         jsonGenerator
	model      string
	template   string
	summarizer datasetSummarizer
	logger     *zap.Logger
}

func NewAdaptiveHandler(ai jsonGenerator, model, template string, summarizer datasetSummarizer, logger *zap.Logger) AdaptiveHandler {
	return &adaptiveHandler{
		ai:         ai,
		model:      model,
		template:   template,
		summarizer: summarizer,
		logger:     logger,
	}
}

// GenerateQuestions handles POST /api/adaptive-questions.
func (h *adaptiveHandler) GenerateQuestions(c *gin.Context) {
	var answers models.FixedAnswers
	if err := c.ShouldBindJSON(&answers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid answers", "details": err.Error()})
		return
	}

	summary, err := h.summarizer.Summarize(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute dataset summary for adaptive questions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate questions"})
		return
	}

	p := prompt.BuildAdaptiveQuestions(h.template, answers, summary)
	raw, err := h.ai.GenerateJSON(c.Request.Context(), h.model, p, adaptiveQuestionsSchema)
	if err != nil {
		h.logger.Error("Adaptive question generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate questions"})
		return
	}

	var parsed struct {
		Questions []AdaptiveQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed.Questions) < 1 {
		h.logger.Error("Adaptive question response malformed", zap.String("response", raw), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate questions"})
		return
	}
	if len(parsed.Questions) > 2 {
		parsed.Questions = parsed.Questions[:2]
	}

	c.JSON(http.StatusOK, gin.H{"questions": parsed.Questions})
}
