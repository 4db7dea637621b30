package explainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// MockGenerativeClient for testing
type MockGenerativeClient struct {
	mock.Mock
}

func (m *MockGenerativeClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func sampleMatch() (ledger.Match, []ledger.Discrepancy) {
	match := ledger.Match{
		ID:         "m1",
		SideARefs:  []string{"ch_1"},
		SideBRefs:  []string{"dep_1"},
		Confidence: 0.82,
		Kind:       ledger.KindFuzzy,
		Status:     ledger.StatusDiscrepant,
	}
	ds := []ledger.Discrepancy{{
		ID:              "d1",
		MatchID:         "m1",
		Type:            ledger.FeeDifference,
		Severity:        ledger.SeverityLow,
		Status:          ledger.DiscrepancyOpen,
		SuggestedAction: "mark_as_expected",
		Detail:          map[string]any{"amount_delta": int64(320), "currency": "USD"},
	}}
	return match, ds
}

func TestExplainer_Explain_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	client := new(MockGenerativeClient)
	client.On("GenerateText", ctx, mock.MatchedBy(func(prompt string) bool {
		return assert.Contains(t, prompt, `"FEE_DIFFERENCE"`) &&
			assert.Contains(t, prompt, `"ch_1"`) &&
			assert.Contains(t, prompt, `"amount_delta": 320`)
	})).Return("  The deposit is the charge net of a 3.20 processing fee.\n", nil).Once()

	explainer := NewExplainer(client, NewMemoryCache(), nil)
	match, ds := sampleMatch()

	// Act
	text, err := explainer.Explain(ctx, match, ds)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "The deposit is the charge net of a 3.20 processing fee.", text)
	client.AssertExpectations(t)
}

func TestExplainer_Explain_UsesCache(t *testing.T) {
	ctx := context.Background()
	client := new(MockGenerativeClient)
	client.On("GenerateText", ctx, mock.Anything).Return("first answer", nil).Once()
	cache := NewMemoryCache()
	explainer := NewExplainer(client, cache, nil)
	match, ds := sampleMatch()

	first, err := explainer.Explain(ctx, match, ds)
	require.NoError(t, err)
	second, err := explainer.Explain(ctx, match, ds)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.Size())
	client.AssertNumberOfCalls(t, "GenerateText", 1)
}

func TestExplainer_Explain_CacheKeyFollowsDiscrepancyState(t *testing.T) {
	ctx := context.Background()
	client := new(MockGenerativeClient)
	client.On("GenerateText", ctx, mock.Anything).Return("open answer", nil).Once()
	client.On("GenerateText", ctx, mock.Anything).Return("resolved answer", nil).Once()
	explainer := NewExplainer(client, NewMemoryCache(), nil)
	match, ds := sampleMatch()

	before, err := explainer.Explain(ctx, match, ds)
	require.NoError(t, err)

	ds[0].Status = ledger.DiscrepancyResolved
	match.Status = ledger.StatusResolved
	after, err := explainer.Explain(ctx, match, ds)
	require.NoError(t, err)

	assert.Equal(t, "open answer", before)
	assert.Equal(t, "resolved answer", after)
}

func TestExplainer_Explain_ClientError(t *testing.T) {
	ctx := context.Background()
	client := new(MockGenerativeClient)
	client.On("GenerateText", ctx, mock.Anything).Return("", errors.New("quota exceeded"))
	cache := NewMemoryCache()
	explainer := NewExplainer(client, cache, nil)
	match, ds := sampleMatch()

	_, err := explainer.Explain(ctx, match, ds)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 0, cache.Size())
}

func TestExplainer_Explain_NoCache(t *testing.T) {
	ctx := context.Background()
	client := new(MockGenerativeClient)
	client.On("GenerateText", ctx, mock.Anything).Return("answer", nil)
	explainer := NewExplainer(client, nil, nil)
	match, ds := sampleMatch()

	_, err := explainer.Explain(ctx, match, ds)
	require.NoError(t, err)
	_, err = explainer.Explain(ctx, match, ds)
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "GenerateText", 2)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "")
	assert.Error(t, err)
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache()

	cache.Set("m1", "text")

	value, found := cache.Get("m1")
	assert.True(t, found)
	assert.Equal(t, "text", value)

	value, found = cache.Get("m2")
	assert.False(t, found)
	assert.Empty(t, value)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := NewMemoryCache()

	var wg sync.WaitGroup
	numGoroutines := 50
	wg.Add(numGoroutines * 2)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			cache.Set(fmt.Sprintf("key_%d", id), fmt.Sprintf("value_%d", id))
		}(i)
		go func(id int) {
			defer wg.Done()
			cache.Get(fmt.Sprintf("key_%d", id))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, cache.Size())
}
