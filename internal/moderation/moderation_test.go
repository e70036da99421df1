package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"backend/internal/models"
	"backend/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _, _ string, _ *genai.Schema) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return `{"safe": true}`, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSafetyWriter struct {
	mu      sync.Mutex
	updates map[string]models.SafetyState
}

func (f *fakeSafetyWriter) UpdateContentSafe(_ context.Context, id string, state models.SafetyState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]models.SafetyState{}
	}
	f.updates[id] = state
	return nil
}

func (f *fakeSafetyWriter) stateFor(id string) (models.SafetyState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.updates[id]
	return state, ok
}

func newTestService(ai generator, repo safetyWriter, policy retry.Policy) *Service {
	return NewService(ai, "flash-test", "count={{count}}\n{{texts}}", []string{"sacrifice"},
		repo, policy, zap.NewNop())
}

func instantPolicy() retry.Policy {
	return retry.Policy{Delays: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}}
}

func TestCollectFreeText(t *testing.T) {
	svc := newTestService(&fakeGenerator{}, &fakeSafetyWriter{}, instantPolicy())

	answers := models.FixedAnswers{BiggestPressure: "housing", ChangeDirection: 4, Sacrifice: "  heating  "}
	adaptive := models.AdaptiveAnswers{
		{Question: "q1", InputType: "short_text", Answer: "cold showers"},
		{Question: "q2", InputType: "single_choice", Answer: "Rent increase"},
		{Question: "q3", InputType: "scale", Answer: float64(4)},
		{Question: "q4", InputType: "short_text", Answer: "   "},
		{Question: "q5", InputType: "short_text", Answer: nil},
	}

	texts := svc.CollectFreeText(answers, adaptive)
	assert.Equal(t, []string{"heating", "cold showers"}, texts)
}

func TestCollectFreeTextNoTextAnswers(t *testing.T) {
	svc := newTestService(&fakeGenerator{}, &fakeSafetyWriter{}, instantPolicy())
	texts := svc.CollectFreeText(models.FixedAnswers{BiggestPressure: "food", ChangeDirection: 3, Sacrifice: " "}, nil)
	assert.Empty(t, texts)
}

func TestModerateEmptyInputSkipsUpstream(t *testing.T) {
	ai := &fakeGenerator{}
	svc := newTestService(ai, &fakeSafetyWriter{}, instantPolicy())

	result, err := svc.Moderate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Safe)
	assert.Zero(t, ai.callCount(), "no upstream call for empty input")
}

func TestModerateParsesVerdict(t *testing.T) {
	ai := &fakeGenerator{responses: []string{`{"safe": false, "reason": "contains a phone number"}`}}
	svc := newTestService(ai, &fakeSafetyWriter{}, instantPolicy())

	result, err := svc.Moderate(context.Background(), []string{"call me on 555-0100"})
	require.NoError(t, err)
	assert.False(t, result.Safe)
	assert.Equal(t, "contains a phone number", result.Reason)
}

func TestModerateInvalidJSONIsError(t *testing.T) {
	ai := &fakeGenerator{responses: []string{`not json`}}
	svc := newTestService(ai, &fakeSafetyWriter{}, instantPolicy())

	_, err := svc.Moderate(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestScreenNoTextIsImmediatelySafe(t *testing.T) {
	ai := &fakeGenerator{}
	svc := newTestService(ai, &fakeSafetyWriter{}, instantPolicy())

	state := svc.Screen(context.Background(), nil)
	assert.Equal(t, models.SafetySafe, state)
	assert.Zero(t, ai.callCount())
}

func TestScreenUnsafeVerdictIsStoredNotRejected(t *testing.T) {
	ai := &fakeGenerator{responses: []string{`{"safe": false, "reason": "spam"}`}}
	svc := newTestService(ai, &fakeSafetyWriter{}, instantPolicy())

	state := svc.Screen(context.Background(), []string{"buy cheap watches"})
	assert.Equal(t, models.SafetyUnsafe, state)
}

func TestScreenUpstreamFailureIsPending(t *testing.T) {
	ai := &fakeGenerator{errs: []error{genai.APIError{Code: 503, Message: "overloaded"}}}
	svc := newTestService(ai, &fakeSafetyWriter{}, instantPolicy())

	state := svc.Screen(context.Background(), []string{"heating"})
	assert.Equal(t, models.SafetyPending, state)
}

func TestRetryLoopPersistsFirstVerdict(t *testing.T) {
	// First attempt fails, second returns unsafe: the row must be updated to
	// unsafe and no further attempts made.
	ai := &fakeGenerator{
		errs:      []error{errors.New("network down"), nil},
		responses: []string{"", `{"safe": false, "reason": "abuse"}`},
	}
	writer := &fakeSafetyWriter{}
	svc := newTestService(ai, writer, instantPolicy())

	svc.retryLoop(context.Background(), "sub-1", []string{"some text"})

	state, ok := writer.stateFor("sub-1")
	require.True(t, ok, "verdict must be persisted")
	assert.Equal(t, models.SafetyUnsafe, state)
	assert.Equal(t, 2, ai.callCount())
}

func TestRetryLoopExhaustionLeavesRowPending(t *testing.T) {
	boom := errors.New("still down")
	ai := &fakeGenerator{errs: []error{boom, boom, boom}}
	writer := &fakeSafetyWriter{}
	svc := newTestService(ai, writer, instantPolicy())

	svc.retryLoop(context.Background(), "sub-2", []string{"some text"})

	_, ok := writer.stateFor("sub-2")
	assert.False(t, ok, "no verdict may be written after exhaustion")
	assert.Equal(t, 3, ai.callCount())
}
