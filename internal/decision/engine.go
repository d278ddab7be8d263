package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/metrics"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/textutil"
)

// Prompt character budgets, applied per item so a single oversized memory
// entry or goal cannot blow up the request.
const (
	memoryEntries   = 10
	memoryCharCap   = 500
	goalEntries     = 5
	goalCharCap     = 300
	metadataCharCap = 500
)

const systemPrompt = `You are the decision core of an autonomous coding agent.
Given the current context, recent memory, and active goals, decide the single
most useful next action. Respond with ONLY a JSON object:
{
  "analysis": "<your reasoning>",
  "action_type": "code_generation" | "code_refactor" | "research" | "reflection" | "goal_update",
  "actions": ["<one instruction per action>"],
  "goals_update": ["<new goals to add, if any>"],
  "confidence": <0.0 to 1.0>
}`

// Engine consults the oracle once per iteration and always hands back a
// well-formed Decision.
type Engine struct {
	oracle provider.Oracle
	opts   provider.Options
	met    *metrics.Collector
	log    *logrus.Entry
}

func NewEngine(oracle provider.Oracle, opts provider.Options, met *metrics.Collector, logger *logrus.Logger) *Engine {
	return &Engine{
		oracle: oracle,
		opts:   opts,
		met:    met,
		log:    logger.WithField("component", "decision"),
	}
}

// Decide builds the bounded prompt, consults the oracle, and parses the
// response. It never returns an error: oracle and parse failures both yield
// the sentinel error Decision with the failure text as analysis.
func (e *Engine) Decide(ctx context.Context, contextStr string, recentMemory, activeGoals []string, metadata map[string]any) Decision {
	prompt := e.buildPrompt(contextStr, recentMemory, activeGoals, metadata)

	raw, err := e.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt},
		{Role: provider.RoleUser, Content: prompt},
	}, e.opts)
	if err != nil {
		e.met.Inc("decision_oracle_failures")
		e.log.WithError(err).Error("oracle consultation failed")
		return ErrorDecision(fmt.Sprintf("oracle failure: %v", err))
	}

	d, err := Parse(raw)
	if err != nil {
		e.met.Inc("decision_parse_failures")
		e.log.WithError(err).Warn("unparseable oracle response")
		return ErrorDecision(fmt.Sprintf("parse failure: %v", err))
	}

	e.met.Inc("decisions")
	e.met.Record("decision_confidence", d.Confidence)
	return d
}

func (e *Engine) buildPrompt(contextStr string, recentMemory, activeGoals []string, metadata map[string]any) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(contextStr)
	b.WriteString("\n\nRecent memory:\n")

	mem := tail(recentMemory, memoryEntries)
	if len(mem) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range mem {
		b.WriteString("- ")
		b.WriteString(textutil.Truncate(m, memoryCharCap))
		b.WriteString("\n")
	}

	b.WriteString("\nActive goals:\n")
	goals := activeGoals
	if len(goals) > goalEntries {
		goals = goals[:goalEntries]
	}
	if len(goals) == 0 {
		b.WriteString("(none)\n")
	}
	for _, g := range goals {
		b.WriteString("- ")
		b.WriteString(textutil.Truncate(g, goalCharCap))
		b.WriteString("\n")
	}

	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			b.WriteString("\nMetadata: ")
			b.WriteString(textutil.Truncate(string(data), metadataCharCap))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func tail(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
