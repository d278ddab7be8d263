package coder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/logging"
	"github.com/jeanpaul/autopilot/internal/provider"
)

type scriptedOracle struct {
	response string
	err      error
	calls    int
}

func (s *scriptedOracle) Complete(ctx context.Context, msgs []provider.Message, opts provider.Options) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *scriptedOracle) Embed(ctx context.Context, text, model string) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func newTestCoder(oracle provider.Oracle, maxCode int) *Coder {
	c := cache.New(true, 100, time.Hour, logging.Discard())
	return New(oracle, provider.Options{}, c, maxCode, logging.Discard())
}

func TestGenerateStripsFenceAndCaches(t *testing.T) {
	oracle := &scriptedOracle{response: "```go\nfunc main() {}\n```"}
	c := newTestCoder(oracle, 10000)

	code, err := c.Generate(context.Background(), "a main function", "go")
	require.NoError(t, err)
	assert.Equal(t, "func main() {}", code)

	// Second call with the same spec hits the cache
	again, err := c.Generate(context.Background(), "a main function", "go")
	require.NoError(t, err)
	assert.Equal(t, code, again)
	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, 1, c.Stats().Generated)
}

func TestGenerateCapsLength(t *testing.T) {
	oracle := &scriptedOracle{response: strings.Repeat("x", 100)}
	c := newTestCoder(oracle, 10)

	code, err := c.Generate(context.Background(), "big", "go")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10)+"...", code)
}

func TestGenerateOracleFailure(t *testing.T) {
	c := newTestCoder(&scriptedOracle{err: errors.New("down")}, 10000)

	_, err := c.Generate(context.Background(), "anything", "go")
	assert.ErrorContains(t, err, "code generation failed")
	assert.Equal(t, 0, c.Stats().Generated)
}

func TestRefactorProducesDiff(t *testing.T) {
	oracle := &scriptedOracle{response: "b := 2\n"}
	c := newTestCoder(oracle, 10000)

	res, err := c.Refactor(context.Background(), "a := 1\n", "rename the variable")
	require.NoError(t, err)
	assert.Equal(t, "b := 2", res.Code)
	assert.Contains(t, res.Diff, "-a := 1")
	assert.Contains(t, res.Diff, "+b := 2")
	assert.Equal(t, 1, c.Stats().Refactored)
}

func TestAnalyzeParsesReport(t *testing.T) {
	oracle := &scriptedOracle{response: `{"quality_score": 0.8, "complexity": "low", "suggestions": ["add tests"]}`}
	c := newTestCoder(oracle, 10000)

	a := c.Analyze(context.Background(), "func f() {}")
	assert.Equal(t, 0.8, a.QualityScore)
	assert.Equal(t, "low", a.Complexity)
	assert.Equal(t, []string{"add tests"}, a.Suggestions)
}

func TestAnalyzeDefaultsOnGarbage(t *testing.T) {
	for _, oracle := range []*scriptedOracle{
		{response: "this code looks fine to me"},
		{err: errors.New("down")},
	} {
		c := newTestCoder(oracle, 10000)
		a := c.Analyze(context.Background(), "func f() {}")
		assert.Equal(t, 0.5, a.QualityScore)
		assert.Equal(t, "unknown", a.Complexity)
		assert.Empty(t, a.Suggestions)
	}
}
