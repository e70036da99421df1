package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExtractedTheme is one AI-discovered pattern across the free-text answers.
type ExtractedTheme struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Frequency            int      `json:"frequency"`
	RepresentativeQuotes []string `json:"representative_quotes"`
}

type ThemeList []ExtractedTheme

func (t ThemeList) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *ThemeList) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ThemeList", src)
	}
	return json.Unmarshal(b, t)
}

// ThemeExtraction represents a row in the 'theme_extractions' table.
// Append-only; the latest row is the current AI theme list.
type ThemeExtraction struct {
	ID               string    `db:"id" json:"id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	Themes           ThemeList `db:"themes" json:"themes"`
	SubmissionCount  int       `db:"submission_count" json:"submission_count"`
	ModelUsed        string    `db:"model_used" json:"model_used"`
	GenerationTimeMs int64     `db:"generation_time_ms" json:"generation_time_ms"`
}

// SummaryDocument is the dataset summary frozen alongside an insight snapshot.
type SummaryDocument map[string]interface{}

func (d SummaryDocument) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *SummaryDocument) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into SummaryDocument", src)
	}
	return json.Unmarshal(b, d)
}

// InsightSnapshot represents a row in the 'insight_snapshots' table.
type InsightSnapshot struct {
	ID               string          `db:"id" json:"id"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	InsightText      string          `db:"insight_text" json:"insight_text"`
	DataSummary      SummaryDocument `db:"data_summary" json:"data_summary"`
	SubmissionCount  int             `db:"submission_count" json:"submission_count"`
	ModelUsed        string          `db:"model_used" json:"model_used"`
	GenerationTimeMs int64           `db:"generation_time_ms" json:"generation_time_ms"`
}
