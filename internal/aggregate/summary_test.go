package aggregate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubmissions struct {
	total      int
	pressures  map[string]int
	avgChange  float64
	sacrifices []string
	calls      int64
}

func (f *fakeSubmissions) CountConsenting(context.Context) (int, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.total, nil
}

func (f *fakeSubmissions) GetPressureCounts(context.Context) (map[string]int, error) {
	return f.pressures, nil
}

func (f *fakeSubmissions) GetAverageChange(context.Context) (float64, error) {
	return f.avgChange, nil
}

func (f *fakeSubmissions) GetSafeSacrifices(context.Context) ([]string, error) {
	return f.sacrifices, nil
}

type fakeThemeRuns struct {
	latest *models.ThemeExtraction
}

func (f *fakeThemeRuns) GetLatestThemeExtraction(context.Context) (*models.ThemeExtraction, error) {
	return f.latest, nil
}

func testKeywords() map[string][]string {
	return map[string][]string{
		"heating":      {"heating", "warm"},
		"socialising":  {"friends", "pub"},
		"food quality": {"fresh", "fruit"},
		"hobbies":      {"gym", "hobby"},
		"holidays":     {"holiday", "travel"},
		"transport":    {"car", "petrol"},
	}
}

func newTestSummarizer(subs *fakeSubmissions, runs *fakeThemeRuns, gapThreshold int, ttl time.Duration) *Summarizer {
	return NewSummarizer(subs, runs, testKeywords(), gapThreshold, ttl, zap.NewNop())
}

func TestSummarizeAssemblesSnapshot(t *testing.T) {
	subs := &fakeSubmissions{
		total:      10,
		pressures:  map[string]int{"housing": 6, "food": 3, "energy": 1},
		avgChange:  3.8,
		sacrifices: []string{"heating", "seeing friends"},
	}
	runs := &fakeThemeRuns{latest: &models.ThemeExtraction{
		Themes: models.ThemeList{{Name: "Warmth deferred", Frequency: 4}},
	}}

	summary, err := newTestSummarizer(subs, runs, 10, time.Minute).Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalResponses)
	assert.Equal(t, "housing", summary.TopPressure)
	assert.Equal(t, 60, summary.TopPressurePct)
	assert.Equal(t, 3.8, summary.AvgChange)
	require.Len(t, summary.AIThemes, 1)
	assert.Equal(t, "Warmth deferred", summary.AIThemes[0].Name)
}

func TestSummarizeNoThemeRunYet(t *testing.T) {
	subs := &fakeSubmissions{total: 3, pressures: map[string]int{"food": 3}}
	summary, err := newTestSummarizer(subs, &fakeThemeRuns{}, 10, time.Minute).Summarize(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary.AIThemes)
}

func TestTopCategoryEmptyDataset(t *testing.T) {
	_, pct := topCategory(map[string]int{}, 0)
	assert.Zero(t, pct)
}

func TestEmergingGapZeroCountReportedImmediately(t *testing.T) {
	s := newTestSummarizer(&fakeSubmissions{}, &fakeThemeRuns{}, 10, time.Minute)

	// childcare has zero answers in a tiny dataset: still reported.
	counts := map[string]int{"housing": 2, "food": 1, "energy": 1, "transport": 1,
		"healthcare": 1, "debt": 1}
	assert.Equal(t, "childcare", s.emergingGap(counts, 7))
}

func TestEmergingGapBelowThresholdSuppressed(t *testing.T) {
	s := newTestSummarizer(&fakeSubmissions{}, &fakeThemeRuns{}, 10, time.Minute)

	counts := map[string]int{"housing": 3, "food": 2, "energy": 2, "transport": 1,
		"childcare": 1, "healthcare": 1, "debt": 1}
	assert.Empty(t, s.emergingGap(counts, 9), "no gap below the dataset size threshold")
	assert.Equal(t, "transport", s.emergingGap(counts, 11))
}

func TestEmergingGapNeverOther(t *testing.T) {
	s := newTestSummarizer(&fakeSubmissions{}, &fakeThemeRuns{}, 10, time.Minute)

	counts := map[string]int{"housing": 5, "food": 4, "energy": 4, "transport": 3,
		"childcare": 3, "healthcare": 2, "debt": 2, "other": 0}
	assert.NotEqual(t, "other", s.emergingGap(counts, 23))
	assert.Equal(t, "healthcare", s.emergingGap(counts, 23))
}

func TestKeywordThemesRankedAndCapped(t *testing.T) {
	s := newTestSummarizer(&fakeSubmissions{}, &fakeThemeRuns{}, 10, time.Minute)

	themes := s.keywordThemes([]string{
		"keeping the heating on",
		"a warm house",
		"going to the pub with friends",
		"fresh fruit",
		"my gym membership",
		"the family holiday",
		"petrol for the car",
	})

	require.NotEmpty(t, themes)
	assert.Equal(t, "heating", themes[0], "most-matched theme first")
	assert.LessOrEqual(t, len(themes), 5)
	assert.NotContains(t, themes, "transport", "sixth-ranked theme is cut")
}

func TestKeywordThemesEmptyInput(t *testing.T) {
	s := newTestSummarizer(&fakeSubmissions{}, &fakeThemeRuns{}, 10, time.Minute)
	assert.Nil(t, s.keywordThemes(nil))
}

func TestCachedSummaryHonoursTTL(t *testing.T) {
	subs := &fakeSubmissions{total: 5, pressures: map[string]int{"housing": 5}}
	s := newTestSummarizer(subs, &fakeThemeRuns{}, 10, time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }

	first, err := s.CachedSummary(context.Background())
	require.NoError(t, err)

	// Within the TTL the cached snapshot is returned without rereading storage.
	subs.total = 50
	now = now.Add(30 * time.Second)
	second, err := s.CachedSummary(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&subs.calls))

	// Past the TTL the summary is recomputed.
	now = now.Add(31 * time.Second)
	third, err := s.CachedSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, third.TotalResponses)
}
