// Package embeddings wraps the oracle's embedding endpoint with caching and
// cosine-similarity ranking.
package embeddings

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/textutil"
)

type Manager struct {
	oracle provider.Oracle
	model  string
	cache  *cache.Cache
	log    *logrus.Entry

	mu        sync.Mutex
	embedded  int
	cacheHits int
}

// Match is one ranked result from SemanticSearch.
type Match struct {
	Text  string
	Score float64
}

type Stats struct {
	Embedded  int `json:"embedded"`
	CacheHits int `json:"cache_hits"`
}

func New(oracle provider.Oracle, model string, c *cache.Cache, logger *logrus.Logger) *Manager {
	return &Manager{
		oracle: oracle,
		model:  model,
		cache:  c,
		log:    logger.WithField("component", "embeddings"),
	}
}

// Embed returns the vector for text, cached by the text's first 50
// characters.
func (m *Manager) Embed(ctx context.Context, text string) ([]float64, error) {
	key := "embed_" + textutil.Truncate(text, 50)
	if v, ok := m.cache.Get(key); ok {
		m.mu.Lock()
		m.cacheHits++
		m.mu.Unlock()
		return v.([]float64), nil
	}

	vec, err := m.oracle.Embed(ctx, text, m.model)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	m.cache.Set(key, vec)

	m.mu.Lock()
	m.embedded++
	m.mu.Unlock()
	return vec, nil
}

// SemanticSearch ranks candidates by cosine similarity to the query and
// returns the top k matches, best first. Candidates that fail to embed are
// skipped.
func (m *Manager) SemanticSearch(ctx context.Context, query string, candidates []string, k int) ([]Match, error) {
	qv, err := m.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, cand := range candidates {
		cv, err := m.Embed(ctx, cand)
		if err != nil {
			m.log.WithError(err).Debug("skipping unembeddable candidate")
			continue
		}
		matches = append(matches, Match{Text: cand, Score: CosineSimilarity(qv, cv)})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors, or
// zero when lengths differ or either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Embedded: m.embedded, CacheHits: m.cacheHits}
}
