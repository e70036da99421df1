package repository

import (
	"context"
	"database/sql"
	"errors"

	"backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// GenerationRepository stores the append-only AI generation runs. The latest
// run per kind is the high-water mark for scheduling decisions.
type GenerationRepository interface {
	SaveThemeExtraction(ctx context.Context, run *models.ThemeExtraction) error
	GetLatestThemeExtraction(ctx context.Context) (*models.ThemeExtraction, error)
	SaveInsightSnapshot(ctx context.Context, run *models.InsightSnapshot) error
	GetLatestInsightSnapshot(ctx context.Context) (*models.InsightSnapshot, error)
}

type generationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewGenerationRepository(db *sqlx.DB, logger *zap.Logger) GenerationRepository {
	return &generationRepository{db: db, logger: logger}
}

func (r *generationRepository) SaveThemeExtraction(ctx context.Context, run *models.ThemeExtraction) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	query := `INSERT INTO theme_extractions (id, themes, submission_count, model_used, generation_time_ms)
	          VALUES ($1, $2, $3, $4, $5) RETURNING created_at`
	return r.db.QueryRowxContext(ctx, query, run.ID, run.Themes, run.SubmissionCount,
		run.ModelUsed, run.GenerationTimeMs).Scan(&run.CreatedAt)
}

// GetLatestThemeExtraction returns the most recent run, or nil when no run
// exists yet.
func (r *generationRepository) GetLatestThemeExtraction(ctx context.Context) (*models.ThemeExtraction, error) {
	var run models.ThemeExtraction
	err := r.db.GetContext(ctx, &run, `
		SELECT id, created_at, themes, submission_count, model_used, generation_time_ms
		FROM theme_extractions
		ORDER BY created_at DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *generationRepository) SaveInsightSnapshot(ctx context.Context, run *models.InsightSnapshot) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	query := `INSERT INTO insight_snapshots (id, insight_text, data_summary, submission_count, model_used, generation_time_ms)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	return r.db.QueryRowxContext(ctx, query, run.ID, run.InsightText, run.DataSummary,
		run.SubmissionCount, run.ModelUsed, run.GenerationTimeMs).Scan(&run.CreatedAt)
}

func (r *generationRepository) GetLatestInsightSnapshot(ctx context.Context) (*models.InsightSnapshot, error) {
	var run models.InsightSnapshot
	err := r.db.GetContext(ctx, &run, `
		SELECT id, created_at, insight_text, data_summary, submission_count, model_used, generation_time_ms
		FROM insight_snapshots
		ORDER BY created_at DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
