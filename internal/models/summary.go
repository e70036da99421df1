package models

// PressureOptions are the valid answers to the biggest-pressure question.
var PressureOptions = []string{
	"housing",
	"food",
	"energy",
	"transport",
	"childcare",
	"healthcare",
	"debt",
	"other",
}

// PressureLabels maps pressure keys to their human-readable form for prompts
// and the statistics API.
var PressureLabels = map[string]string{
	"housing":    "Housing costs",
	"food":       "Food & groceries",
	"energy":     "Energy bills",
	"transport":  "Getting around",
	"childcare":  "Childcare",
	"healthcare": "Healthcare",
	"debt":       "Debt & borrowing",
	"other":      "Other",
}

// DatasetSummary is the derived aggregate picture of the dataset. It is never
// stored directly; insight snapshots freeze a copy as a SummaryDocument.
type DatasetSummary struct {
	TotalResponses  int              `json:"total_responses"`
	TopPressure     string           `json:"top_pressure"`
	TopPressurePct  int              `json:"top_pressure_pct"`
	AvgChange       float64          `json:"avg_change"`
	SacrificeThemes []string         `json:"sacrifice_themes"`
	EmergingGap     string           `json:"emerging_gap,omitempty"`
	AIThemes        []ExtractedTheme `json:"ai_themes,omitempty"`
}

// Document flattens the summary for persistence alongside an insight snapshot.
func (s *DatasetSummary) Document() SummaryDocument {
	doc := SummaryDocument{
		"total_responses":  s.TotalResponses,
		"top_pressure":     s.TopPressure,
		"top_pressure_pct": s.TopPressurePct,
		"avg_change":       s.AvgChange,
		"sacrifice_themes": s.SacrificeThemes,
	}
	if s.EmergingGap != "" {
		doc["emerging_gap"] = s.EmergingGap
	}
	if len(s.AIThemes) > 0 {
		doc["ai_themes"] = s.AIThemes
	}
	return doc
}
