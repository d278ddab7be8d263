package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/logging"
	"github.com/jeanpaul/autopilot/internal/provider"
)

// vectorOracle returns a fixed vector per input text.
type vectorOracle struct {
	vectors map[string][]float64
	calls   int
}

func (v *vectorOracle) Complete(ctx context.Context, msgs []provider.Message, opts provider.Options) (string, error) {
	return "", errors.New("not implemented")
}

func (v *vectorOracle) Embed(ctx context.Context, text, model string) ([]float64, error) {
	v.calls++
	vec, ok := v.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return vec, nil
}

func newTestManager(oracle provider.Oracle) *Manager {
	c := cache.New(true, 100, time.Hour, logging.Discard())
	return New(oracle, "test-embed", c, logging.Discard())
}

func TestEmbedCaches(t *testing.T) {
	oracle := &vectorOracle{vectors: map[string][]float64{"hello": {1, 0}}}
	m := newTestManager(oracle)

	v1, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, oracle.calls)
	st := m.Stats()
	assert.Equal(t, 1, st.Embedded)
	assert.Equal(t, 1, st.CacheHits)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
}

func TestSemanticSearchRanksAndLimits(t *testing.T) {
	oracle := &vectorOracle{vectors: map[string][]float64{
		"query":  {1, 0},
		"close":  {0.9, 0.1},
		"far":    {0, 1},
		"middle": {0.5, 0.5},
	}}
	m := newTestManager(oracle)

	matches, err := m.SemanticSearch(context.Background(), "query",
		[]string{"far", "close", "middle", "unembed"}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "close", matches[0].Text)
	assert.Equal(t, "middle", matches[1].Text)
}

func TestSemanticSearchQueryFailure(t *testing.T) {
	m := newTestManager(&vectorOracle{vectors: map[string][]float64{}})

	_, err := m.SemanticSearch(context.Background(), "query", []string{"a"}, 1)
	assert.Error(t, err)
}
