package repository

import (
	"context"
	"time"

	"backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type SubmissionRepository interface {
	SaveSubmission(ctx context.Context, sub *models.Submission) error
	UpdateContentSafe(ctx context.Context, id string, state models.SafetyState) error
	CountConsenting(ctx context.Context) (int, error)
	CountConsentingSince(ctx context.Context, since time.Time) (int, error)
	GetPressureCounts(ctx context.Context) (map[string]int, error)
	GetAverageChange(ctx context.Context) (float64, error)
	GetSafeSacrifices(ctx context.Context) ([]string, error)
	GetSafeAdaptiveAnswers(ctx context.Context) ([]models.AdaptiveAnswer, error)
}

type submissionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSubmissionRepository(db *sqlx.DB, logger *zap.Logger) SubmissionRepository {
	return &submissionRepository{db: db, logger: logger}
}

func (r *submissionRepository) SaveSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	query := `INSERT INTO submissions (id, responses, adaptive_data, consent_given, content_safe)
	          VALUES ($1, $2, $3, $4, $5) RETURNING created_at`
	return r.db.QueryRowxContext(ctx, query, sub.ID, sub.Responses, sub.AdaptiveData,
		sub.ConsentGiven, sub.ContentSafe).Scan(&sub.CreatedAt)
}

// UpdateContentSafe is the single post-insert mutation a submission row ever
// sees, written by the moderation gate or its background retry.
func (r *submissionRepository) UpdateContentSafe(ctx context.Context, id string, state models.SafetyState) error {
	_, err := r.db.ExecContext(ctx, `UPDATE submissions SET content_safe = $1 WHERE id = $2`, state, id)
	return err
}

func (r *submissionRepository) CountConsenting(ctx context.Context) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM submissions WHERE consent_given = TRUE`)
	return total, err
}

func (r *submissionRepository) CountConsentingSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM submissions WHERE consent_given = TRUE AND created_at >= $1`, since)
	return total, err
}

func (r *submissionRepository) GetPressureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT responses->>'biggest_pressure' AS pressure, COUNT(*) AS total
		FROM submissions
		WHERE consent_given = TRUE
		GROUP BY pressure`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int, len(models.PressureOptions))
	for _, p := range models.PressureOptions {
		counts[p] = 0
	}
	for rows.Next() {
		var pressure string
		var total int
		if err := rows.Scan(&pressure, &total); err != nil {
			return nil, err
		}
		if _, ok := counts[pressure]; ok {
			counts[pressure] = total
		}
	}
	return counts, rows.Err()
}

func (r *submissionRepository) GetAverageChange(ctx context.Context) (float64, error) {
	var avg float64
	err := r.db.GetContext(ctx, &avg, `
		SELECT COALESCE(AVG((responses->>'change_direction')::numeric), 0)
		FROM submissions
		WHERE consent_given = TRUE`)
	if err != nil {
		return 0, err
	}
	// One decimal place, matching what the prompts and statistics API show.
	return float64(int(avg*10+0.5)) / 10, nil
}

// GetSafeSacrifices returns the free-text sacrifice answers of consenting
// submissions whose content was explicitly marked safe. Pending rows are
// excluded, never assumed safe.
func (r *submissionRepository) GetSafeSacrifices(ctx context.Context) ([]string, error) {
	var sacrifices []string
	err := r.db.SelectContext(ctx, &sacrifices, `
		SELECT responses->>'sacrifice'
		FROM submissions
		WHERE consent_given = TRUE
		  AND content_safe = TRUE
		  AND COALESCE(responses->>'sacrifice', '') <> ''
		ORDER BY created_at DESC`)
	return sacrifices, err
}

func (r *submissionRepository) GetSafeAdaptiveAnswers(ctx context.Context) ([]models.AdaptiveAnswer, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT adaptive_data
		FROM submissions
		WHERE consent_given = TRUE
		  AND content_safe = TRUE
		  AND adaptive_data IS NOT NULL
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []models.AdaptiveAnswer
	for rows.Next() {
		var batch models.AdaptiveAnswers
		if err := rows.Scan(&batch); err != nil {
			r.logger.Error("Failed to scan adaptive data", zap.Error(err))
			continue
		}
		all = append(all, batch...)
	}
	return all, rows.Err()
}
