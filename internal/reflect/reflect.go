// Package reflect implements the self-review collaborator: it reads the
// loop's own memory back and asks the oracle what is working and what
// should change.
package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/embeddings"
	"github.com/jeanpaul/autopilot/internal/memory"
	"github.com/jeanpaul/autopilot/internal/provider"
	"github.com/jeanpaul/autopilot/internal/textutil"
)

const (
	decisionWindow = 10
	codeWindow     = 5
	entryCharCap   = 400
)

type Reflector struct {
	oracle provider.Oracle
	opts   provider.Options
	mem    *memory.Log
	emb    *embeddings.Manager
	log    *logrus.Entry

	mu          sync.Mutex
	reflections int
}

type Stats struct {
	Reflections int `json:"reflections"`
}

// New builds a Reflector. emb may be nil; when set, and more decisions exist
// than the window holds, the window is filled with the decisions most
// semantically relevant to the focus instead of simply the latest ones.
func New(oracle provider.Oracle, opts provider.Options, mem *memory.Log, emb *embeddings.Manager, logger *logrus.Logger) *Reflector {
	return &Reflector{
		oracle: oracle,
		opts:   opts,
		mem:    mem,
		emb:    emb,
		log:    logger.WithField("component", "reflect"),
	}
}

// Analyze reviews recent decisions and generated code against the focus and
// returns the oracle's assessment.
func (r *Reflector) Analyze(ctx context.Context, focus string) (string, error) {
	r.mu.Lock()
	r.reflections++
	r.mu.Unlock()

	decisions := r.selectDecisions(ctx, focus)
	code := tailEvents(r.mem.ByType("code_generated"), codeWindow)

	var b strings.Builder
	fmt.Fprintf(&b, "Focus: %s\n\nRecent decisions:\n", focus)
	if len(decisions) == 0 {
		b.WriteString("(none)\n")
	}
	for _, d := range decisions {
		fmt.Fprintf(&b, "- %s\n", textutil.Truncate(d, entryCharCap))
	}
	b.WriteString("\nRecently generated code:\n")
	if len(code) == 0 {
		b.WriteString("(none)\n")
	}
	for _, ev := range code {
		fmt.Fprintf(&b, "- %s\n", textutil.Truncate(ev.Content, entryCharCap))
	}
	b.WriteString("\nAssess what is working, what is not, and what to change next.")

	out, err := r.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: b.String()},
	}, r.opts)
	if err != nil {
		return "", fmt.Errorf("reflection failed: %w", err)
	}
	return out, nil
}

// selectDecisions picks the decision contents to reflect over. With an
// embeddings manager and an overfull history, relevance to the focus wins
// over recency.
func (r *Reflector) selectDecisions(ctx context.Context, focus string) []string {
	events := r.mem.ByType("decision")
	contents := make([]string, len(events))
	for i, ev := range events {
		contents[i] = ev.Content
	}

	if r.emb != nil && focus != "" && len(contents) > decisionWindow {
		matches, err := r.emb.SemanticSearch(ctx, focus, contents, decisionWindow)
		if err == nil {
			ranked := make([]string, len(matches))
			for i, m := range matches {
				ranked[i] = m.Text
			}
			return ranked
		}
		r.log.WithError(err).Debug("semantic ranking failed, falling back to recency")
	}

	if len(contents) > decisionWindow {
		contents = contents[len(contents)-decisionWindow:]
	}
	return contents
}

// Improvements asks for concrete follow-up suggestions as a JSON array.
// A response that cannot be parsed yields an empty list, not an error.
func (r *Reflector) Improvements(ctx context.Context) []string {
	recent := r.mem.Recent(decisionWindow)

	var b strings.Builder
	b.WriteString("Based on this activity log, suggest concrete improvements. Respond with ONLY a JSON array of strings.\n\n")
	for _, m := range recent {
		fmt.Fprintf(&b, "- %s\n", textutil.Truncate(m, entryCharCap))
	}

	out, err := r.oracle.Complete(ctx, []provider.Message{
		{Role: provider.RoleUser, Content: b.String()},
	}, r.opts)
	if err != nil {
		r.log.WithError(err).Warn("improvements oracle call failed")
		return []string{}
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(stripFence(out)), &suggestions); err != nil {
		r.log.WithError(err).Warn("unparseable improvements response")
		return []string{}
	}
	return suggestions
}

func (r *Reflector) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Reflections: r.reflections}
}

func tailEvents(events []memory.Event, n int) []memory.Event {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
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
