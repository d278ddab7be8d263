// Package decision turns one oracle consultation into a normalized Decision
// the loop can dispatch on. Parsing is total: every failure path yields a
// well-formed error Decision, never a panic or a missing field.
package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ActionType tags what kind of work a Decision asks for. Unrecognized tags
// from the oracle are mapped to ActionUnknown and dispatch nothing.
type ActionType string

const (
	ActionCodeGeneration ActionType = "code_generation"
	ActionCodeRefactor   ActionType = "code_refactor"
	ActionResearch       ActionType = "research"
	ActionReflection     ActionType = "reflection"
	ActionGoalUpdate     ActionType = "goal_update"
	ActionError          ActionType = "error"
	ActionUnknown        ActionType = "unknown"
)

var knownActions = map[ActionType]bool{
	ActionCodeGeneration: true,
	ActionCodeRefactor:   true,
	ActionResearch:       true,
	ActionReflection:     true,
	ActionGoalUpdate:     true,
}

// Decision is the normalized structured output of one oracle call. Every
// field is always populated; downstream code never checks for absence.
type Decision struct {
	Analysis    string     `json:"analysis"`
	ActionType  ActionType `json:"action_type"`
	Actions     []string   `json:"actions"`
	GoalsUpdate []string   `json:"goals_update"`
	Confidence  float64    `json:"confidence"`
}

// ErrorDecision builds the sentinel Decision used on every failure path.
func ErrorDecision(analysis string) Decision {
	return Decision{
		Analysis:    analysis,
		ActionType:  ActionError,
		Actions:     []string{},
		GoalsUpdate: []string{},
		Confidence:  0,
	}
}

// ParseError reports that the oracle's raw text could not be interpreted as
// a decision. It carries the raw text so callers can log or store it.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse decision: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// decisionSchema type-checks the fields without requiring any of them;
// normalization fills whatever is missing.
const decisionSchema = `{
	"type": "object",
	"properties": {
		"analysis": {"type": "string"},
		"action_type": {"type": "string"},
		"actions": {"type": "array", "items": {"type": "string"}},
		"goals_update": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number"}
	}
}`

var schema = gojsonschema.NewStringLoader(decisionSchema)

// Parse interprets raw oracle output as a Decision. Markdown code fences
// around the JSON are stripped first. On any failure a *ParseError is
// returned; on success every field is normalized per the defaults.
func Parse(raw string) (Decision, error) {
	text := stripFences(raw)

	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(text))
	if err != nil {
		return Decision{}, &ParseError{Raw: raw, Err: err}
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return Decision{}, &ParseError{Raw: raw, Err: fmt.Errorf("schema: %s", strings.Join(msgs, "; "))}
	}

	var fields struct {
		Analysis    *string  `json:"analysis"`
		ActionType  *string  `json:"action_type"`
		Actions     []string `json:"actions"`
		GoalsUpdate []string `json:"goals_update"`
		Confidence  *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return Decision{}, &ParseError{Raw: raw, Err: err}
	}

	d := Decision{
		ActionType:  ActionUnknown,
		Actions:     []string{},
		GoalsUpdate: []string{},
		Confidence:  0.5,
	}
	if fields.Analysis != nil {
		d.Analysis = *fields.Analysis
	}
	if fields.ActionType != nil {
		if tag := ActionType(*fields.ActionType); knownActions[tag] {
			d.ActionType = tag
		}
	}
	if fields.Actions != nil {
		d.Actions = fields.Actions
	}
	if fields.GoalsUpdate != nil {
		d.GoalsUpdate = fields.GoalsUpdate
	}
	if fields.Confidence != nil {
		d.Confidence = clamp01(*fields.Confidence)
	}
	return d, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, so fenced JSON responses still parse.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		// Drop the language tag line ("json", "JSON", or empty)
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
