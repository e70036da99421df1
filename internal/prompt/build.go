package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"backend/internal/models"
)

// NumberedQuotes formats texts as a numbered, quoted list for batching into a
// single prompt.
func NumberedQuotes(texts []string) string {
	lines := make([]string, len(texts))
	for i, t := range texts {
		lines[i] = fmt.Sprintf("%d. %q", i+1, t)
	}
	return strings.Join(lines, "\n")
}

// BuildModeration batches free-text answers into the moderation template.
func BuildModeration(template string, texts []string) string {
	return Render(template, map[string]string{
		"count": strconv.Itoa(len(texts)),
		"texts": NumberedQuotes(texts),
	})
}

// BuildThemeExtraction feeds every safe sacrifice answer into the theme
// discovery template.
func BuildThemeExtraction(template string, sacrifices []string) string {
	return Render(template, map[string]string{
		"count":     strconv.Itoa(len(sacrifices)),
		"responses": NumberedQuotes(sacrifices),
	})
}

// themeSummaryLine describes the current themes for a prompt: AI-discovered
// themes take precedence over the fallback keyword themes when present.
func themeSummaryLine(summary *models.DatasetSummary) string {
	if len(summary.AIThemes) > 0 {
		parts := make([]string, len(summary.AIThemes))
		for i, t := range summary.AIThemes {
			parts[i] = fmt.Sprintf("%q (~%d mentions): %s", t.Name, t.Frequency, t.Description)
		}
		return strings.Join(parts, "; ")
	}
	return strings.Join(summary.SacrificeThemes, ", ")
}

// BuildAdaptiveQuestions renders the follow-up question prompt from the
// respondent's fixed answers and the dataset overview.
func BuildAdaptiveQuestions(template string, answers models.FixedAnswers, summary *models.DatasetSummary) string {
	gapLine := ""
	if summary.EmergingGap != "" {
		gapLine = fmt.Sprintf("- DATA GAP: We have very few responses about %s", summary.EmergingGap)
	}

	var guidance string
	switch {
	case summary.TotalResponses < 10:
		guidance = "We have very few responses. Ask broader questions to establish baseline understanding."
	case summary.TotalResponses < 50:
		guidance = "We're building a picture. Start probing for nuance within the dominant themes."
	default:
		guidance = "We have substantial data. Ask targeted questions to uncover the most surprising or underreported patterns."
	}

	return Render(template, map[string]string{
		"biggest_pressure":  answers.BiggestPressure,
		"change_direction":  strconv.Itoa(answers.ChangeDirection),
		"sacrifice":         answers.Sacrifice,
		"total_responses":   strconv.Itoa(summary.TotalResponses),
		"top_pressure":      summary.TopPressure,
		"top_pressure_pct":  strconv.Itoa(summary.TopPressurePct),
		"avg_change":        strconv.FormatFloat(summary.AvgChange, 'f', -1, 64),
		"sacrifice_themes":  themeSummaryLine(summary),
		"emerging_gap_line": gapLine,
		"volume_guidance":   guidance,
	})
}

// PressuresRanked formats the per-pressure counts as ranked "label: count (pct%)"
// lines, omitting empty categories.
func PressuresRanked(counts map[string]int, total int) string {
	if total == 0 {
		return ""
	}
	type entry struct {
		key   string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for k, c := range counts {
		if c > 0 {
			entries = append(entries, entry{k, c})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].count > entries[j].count })
	lines := make([]string, len(entries))
	for i, e := range entries {
		label := models.PressureLabels[e.key]
		if label == "" {
			label = e.key
		}
		pct := int(float64(e.count)/float64(total)*100 + 0.5)
		lines[i] = fmt.Sprintf("%s: %d (%d%%)", label, e.count, pct)
	}
	return strings.Join(lines, "\n")
}

// BuildInsightUser renders the main insight prompt. The sacrifice answers go
// in verbatim: they are the emotional core of the narrative.
func BuildInsightUser(template string, summary *models.DatasetSummary, pressuresRanked string,
	sacrifices []string, adaptive []models.AdaptiveAnswer, newThisWeek, newThisMonth int) string {

	recency := fmt.Sprintf("New this week: %d responses.\nNew this month: %d responses.", newThisWeek, newThisMonth)

	aiThemesBlock := ""
	if len(summary.AIThemes) > 0 {
		var b strings.Builder
		b.WriteString("\nCOMMUNITY THEMES (AI-discovered patterns across all sacrifice responses):\n")
		for _, t := range summary.AIThemes {
			quotes := make([]string, len(t.RepresentativeQuotes))
			for i, q := range t.RepresentativeQuotes {
				quotes[i] = fmt.Sprintf("%q", q)
			}
			fmt.Fprintf(&b, "- %s (~%d mentions): %s\n  Quotes: %s\n",
				t.Name, t.Frequency, t.Description, strings.Join(quotes, ", "))
		}
		b.WriteString("\nUse the COMMUNITY THEMES section to structure your narrative around the dominant patterns, but let the individual quotes bring them to life.\n")
		aiThemesBlock = b.String()
	}

	sacrificeLines := make([]string, len(sacrifices))
	for i, s := range sacrifices {
		sacrificeLines[i] = fmt.Sprintf("- %q", s)
	}

	adaptiveJSON, err := json.MarshalIndent(adaptive, "", "  ")
	if err != nil {
		adaptiveJSON = []byte("[]")
	}

	return Render(template, map[string]string{
		"total_responses":  strconv.Itoa(summary.TotalResponses),
		"recency_line":     recency,
		"pressures_ranked": pressuresRanked,
		"avg_change":       strconv.FormatFloat(summary.AvgChange, 'f', -1, 64),
		"ai_themes_block":  aiThemesBlock,
		"all_sacrifices":   strings.Join(sacrificeLines, "\n"),
		"adaptive_answers": string(adaptiveJSON),
	})
}
