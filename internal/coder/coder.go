// Package coder implements the code generation collaborators: oracle-backed
// generation, refactoring with a unified diff of the change, and a quality
// analysis with safe defaults.
package coder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/cache"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/textutil"
)

type Coder struct {
	oracle  provider.Oracle
	opts    provider.Options
	cache   *cache.Cache
	maxCode int
	log     *logrus.Entry

	mu         sync.Mutex
	generated  int
	refactored int
	analyzed   int
}

// RefactorResult carries the refactored code plus a unified diff against
// the input, for the memory log.
type RefactorResult struct {
	Code string
	Diff string
}

// Analysis is the quality report for a piece of code. Fields default to a
// neutral verdict when the oracle's response cannot be parsed.
type Analysis struct {
	QualityScore float64  `json:"quality_score"`
	Complexity   string   `json:"complexity"`
	Suggestions  []string `json:"suggestions"`
}

type Stats struct {
	Generated  int `json:"generated"`
	Refactored int `json:"refactored"`
	Analyzed   int `json:"analyzed"`
}

func New(oracle provider.Oracle, opts provider.Options, c *cache.Cache, maxCode int, logger *logrus.Logger) *Coder {
	return &Coder{
		oracle:  oracle,
		opts:    opts,
		cache:   c,
		maxCode: maxCode,
		log:     logger.WithField("component", "coder"),
	}
}

// Generate produces code for the given specification. Results are cached by
// language and the first 50 characters of the spec, and capped at the
// configured maximum length.
func (c *Coder) Generate(ctx context.Context, spec, language string) (string, error) {
	key := fmt.Sprintf("gen_%s_%s", language, textutil.Truncate(spec, 50))
	if v, ok := c.cache.Get(key); ok {
		c.log.Debug("generation cache hit")
		return v.(string), nil
	}

	prompt := fmt.Sprintf("Write %s code for the following specification. Respond with only the code, no explanation.\n\n%s", language, spec)
	raw, err := c.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
	}, c.opts)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}

	code := textutil.Truncate(stripFence(raw), c.maxCode)
	c.cache.Set(key, code)

	c.mu.Lock()
	c.generated++
	c.mu.Unlock()
	return code, nil
}

// Refactor rewrites code per the instruction and returns the new code with
// a unified diff of the change.
func (c *Coder) Refactor(ctx context.Context, code, instruction string) (RefactorResult, error) {
	prompt := fmt.Sprintf("Refactor the following code. Instruction: %s\nRespond with only the refactored code.\n\n%s", instruction, code)
	raw, err := c.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
	}, c.opts)
	if err != nil {
		return RefactorResult{}, fmt.Errorf("refactor failed: %w", err)
	}

	after := textutil.Truncate(stripFence(raw), c.maxCode)
	edits := myers.ComputeEdits(span.URIFromPath("code"), code, after)
	diff := fmt.Sprint(gotextdiff.ToUnified("before", "after", code, edits))

	c.mu.Lock()
	c.refactored++
	c.mu.Unlock()
	return RefactorResult{Code: after, Diff: diff}, nil
}

// Analyze asks the oracle for a quality report. A response that cannot be
// parsed yields a neutral Analysis rather than an error.
func (c *Coder) Analyze(ctx context.Context, code string) Analysis {
	c.mu.Lock()
	c.analyzed++
	c.mu.Unlock()

	neutral := Analysis{QualityScore: 0.5, Complexity: "unknown", Suggestions: []string{}}

	prompt := fmt.Sprintf(`Analyze this code and respond with ONLY a JSON object:
{"quality_score": <0.0 to 1.0>, "complexity": "low"|"medium"|"high", "suggestions": ["..."]}

%s`, code)
	raw, err := c.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
	}, c.opts)
	if err != nil {
		c.log.WithError(err).Warn("analysis oracle call failed")
		return neutral
	}

	var a Analysis
	if err := json.Unmarshal([]byte(stripFence(raw)), &a); err != nil {
		c.log.WithError(err).Warn("unparseable analysis response")
		return neutral
	}
	if a.Suggestions == nil {
		a.Suggestions = []string{}
	}
	if a.Complexity == "" {
		a.Complexity = "unknown"
	}
	return a
}

func (c *Coder) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Generated: c.generated, Refactored: c.refactored, Analyzed: c.analyzed}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
