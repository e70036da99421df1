// Package aggregate computes the derived dataset summary consumed by prompts,
// scheduling decisions and the statistics API.
package aggregate

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type submissionReader interface {
	CountConsenting(ctx context.Context) (int, error)
	GetPressureCounts(ctx context.Context) (map[string]int, error)
	GetAverageChange(ctx context.Context) (float64, error)
	GetSafeSacrifices(ctx context.Context) ([]string, error)
}

type themeReader interface {
	GetLatestThemeExtraction(ctx context.Context) (*models.ThemeExtraction, error)
}

type Summarizer struct {
	subs         submissionReader
	runs         themeReader
	keywords     map[string][]string
	gapThreshold int
	cacheTTL     time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	cached   *models.DatasetSummary
	cachedAt time.Time
	now      func() time.Time
}

func NewSummarizer(subs submissionReader, runs themeReader, keywords map[string][]string,
	gapThreshold int, cacheTTL time.Duration, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		subs:         subs,
		runs:         runs,
		keywords:     keywords,
		gapThreshold: gapThreshold,
		cacheTTL:     cacheTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// Summarize recomputes the summary from current stored state. No side effects.
func (s *Summarizer) Summarize(ctx context.Context) (*models.DatasetSummary, error) {
	var (
		total      int
		pressures  map[string]int
		avgChange  float64
		sacrifices []string
		latestRun  *models.ThemeExtraction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { total, err = s.subs.CountConsenting(gctx); return })
	g.Go(func() (err error) { pressures, err = s.subs.GetPressureCounts(gctx); return })
	g.Go(func() (err error) { avgChange, err = s.subs.GetAverageChange(gctx); return })
	g.Go(func() (err error) { sacrifices, err = s.subs.GetSafeSacrifices(gctx); return })
	g.Go(func() (err error) { latestRun, err = s.runs.GetLatestThemeExtraction(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	topPressure, topPct := topCategory(pressures, total)

	summary := &models.DatasetSummary{
		TotalResponses:  total,
		TopPressure:     topPressure,
		TopPressurePct:  topPct,
		AvgChange:       avgChange,
		SacrificeThemes: s.keywordThemes(sacrifices),
		EmergingGap:     s.emergingGap(pressures, total),
	}
	if latestRun != nil {
		summary.AIThemes = latestRun.Themes
	}
	return summary, nil
}

// CachedSummary serves repeated statistics reads through a bounded TTL cache.
// Schedulers and prompt builders call Summarize directly so gating decisions
// never act on stale counts.
func (s *Summarizer) CachedSummary(ctx context.Context) (*models.DatasetSummary, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.cacheTTL {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	summary, err := s.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = summary
	s.cachedAt = s.now()
	s.mu.Unlock()
	return summary, nil
}

func topCategory(counts map[string]int, total int) (string, int) {
	top := ""
	best := -1
	for _, key := range models.PressureOptions {
		if counts[key] > best {
			top = key
			best = counts[key]
		}
	}
	if total == 0 || best <= 0 {
		return top, 0
	}
	return top, int(float64(best)/float64(total)*100 + 0.5)
}

// emergingGap reports the least-represented non-"other" pressure, but only
// when its silence is meaningful: immediately if its count is exactly zero,
// otherwise once the dataset has reached the configured size threshold.
func (s *Summarizer) emergingGap(counts map[string]int, total int) string {
	gap := ""
	lowest := -1
	for _, key := range models.PressureOptions {
		if key == "other" {
			continue
		}
		if lowest == -1 || counts[key] < lowest {
			gap = key
			lowest = counts[key]
		}
	}
	if gap == "" {
		return ""
	}
	if lowest == 0 || total >= s.gapThreshold {
		return gap
	}
	return ""
}

// keywordThemes is the pre-AI fallback: substring matching against the
// configured keyword map, returning at most the top five themes with at least
// one match, ranked by match count.
func (s *Summarizer) keywordThemes(sacrifices []string) []string {
	if len(sacrifices) == 0 {
		return nil
	}

	lowered := make([]string, len(sacrifices))
	for i, t := range sacrifices {
		lowered[i] = strings.ToLower(t)
	}

	type match struct {
		theme string
		count int
	}
	var matches []match
	for theme, keywords := range s.keywords {
		count := 0
		for _, text := range lowered {
			for _, kw := range keywords {
				if strings.Contains(text, kw) {
					count++
					break
				}
			}
		}
		if count > 0 {
			matches = append(matches, match{theme, count})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].count != matches[j].count {
			return matches[i].count > matches[j].count
		}
		return matches[i].theme < matches[j].theme
	})

	if len(matches) > 5 {
		matches = matches[:5]
	}
	themes := make([]string, len(matches))
	for i, m := range matches {
		themes[i] = m.theme
	}
	return themes
}
