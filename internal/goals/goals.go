// Package goals implements the goal store with its status lifecycle.
// Transitions are one-directional and idempotent by id; the whole collection
// is rewritten to disk on every mutation.
package goals

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/events"
	"github.com/jeanpaul/autopilot/internal/textutil"
)

// Status is the closed set of goal states. Goals are created active and move
// at most once per call to completed, failed, or blocked.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusBlocked   Status = "blocked"
	StatusFailed    Status = "failed"
)

// Canonical priority levels; lower is more urgent.
const (
	PriorityCritical = 1
	PriorityHigh     = 3
	PriorityMedium   = 5
	PriorityLow      = 8
)

type Goal struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Priority  int    `json:"priority"`
	Status    Status `json:"status"`
	Created   string `json:"created"`
	Completed string `json:"completed,omitempty"`
	Attempts  int    `json:"attempts"`
}

type Store struct {
	mu        sync.Mutex
	goals     []Goal
	path      string
	bus       *events.Bus
	created   int
	completed int
	failed    int
	log       *logrus.Entry
}

// Stats reports lifecycle counters for the run report.
type Stats struct {
	Created   int `json:"created"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Active    int `json:"active"`
	Total     int `json:"total"`
}

// NewStore loads the goal collection from path, starting empty if the file
// is missing or unreadable. bus may be nil; when set, completed and failed
// transitions are published on it.
func NewStore(path string, bus *events.Bus, logger *logrus.Logger) *Store {
	s := &Store{
		path: path,
		bus:  bus,
		log:  logger.WithField("component", "goals"),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Error("failed to load goals")
		}
		return
	}
	if err := json.Unmarshal(data, &s.goals); err != nil {
		s.log.WithError(err).Error("goals file is corrupt, starting empty")
	}
}

// persist rewrites the whole collection. Callers hold the lock. Failure is
// logged and swallowed.
func (s *Store) persist() {
	data, err := json.MarshalIndent(s.goals, "", "  ")
	if err != nil {
		s.log.WithError(err).Error("failed to encode goals")
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.log.WithError(err).Error("failed to save goals")
	}
}

// Add creates an active goal and returns its id. IDs combine the sequence
// position with the creation time and are never reused.
func (s *Store) Add(text string, priority int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := fmt.Sprintf("goal_%d_%d", len(s.goals), now.UnixNano())
	s.goals = append(s.goals, Goal{
		ID:       id,
		Text:     text,
		Priority: priority,
		Status:   StatusActive,
		Created:  now.Format(time.RFC3339Nano),
	})
	s.created++
	s.persist()
	s.log.WithField("goal", textutil.Truncate(text, 50)).Info("goal added")
	return id
}

// Complete marks the goal with the given id completed. Unknown ids are a
// silent no-op.
func (s *Store) Complete(id string) {
	s.mu.Lock()
	var done *Goal
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].Status = StatusCompleted
			s.goals[i].Completed = time.Now().UTC().Format(time.RFC3339Nano)
			s.completed++
			s.persist()
			done = &s.goals[i]
			break
		}
	}
	s.mu.Unlock()

	if done != nil {
		s.log.WithField("goal", textutil.Truncate(done.Text, 50)).Info("goal completed")
		if s.bus != nil {
			s.bus.Publish(events.NewEvent(events.GoalCompleted, map[string]any{"id": id, "text": done.Text}))
		}
	}
}

// Fail marks the goal failed and increments its attempt counter. Unknown
// ids are a silent no-op.
func (s *Store) Fail(id string) {
	s.mu.Lock()
	var failed *Goal
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].Status = StatusFailed
			s.goals[i].Attempts++
			s.failed++
			s.persist()
			failed = &s.goals[i]
			break
		}
	}
	s.mu.Unlock()

	if failed != nil {
		s.log.WithField("goal", textutil.Truncate(failed.Text, 50)).Warn("goal failed")
		if s.bus != nil {
			s.bus.Publish(events.NewEvent(events.GoalFailed, map[string]any{"id": id, "text": failed.Text}))
		}
	}
}

// Block marks the goal blocked. Unknown ids are a silent no-op.
func (s *Store) Block(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].Status = StatusBlocked
			s.persist()
			s.log.WithField("goal", textutil.Truncate(s.goals[i].Text, 50)).Warn("goal blocked")
			return
		}
	}
}

// Active returns the text of every active goal in insertion order.
func (s *Store) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, g := range s.goals {
		if g.Status == StatusActive {
			out = append(out, g.Text)
		}
	}
	return out
}

// Completed returns the text of every completed goal in insertion order.
func (s *Store) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, g := range s.goals {
		if g.Status == StatusCompleted {
			out = append(out, g.Text)
		}
	}
	return out
}

// ByPriority returns active goals at exactly the given priority. Goals at
// that priority which already transitioned are excluded.
func (s *Store) ByPriority(priority int) []Goal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Goal
	for _, g := range s.goals {
		if g.Priority == priority && g.Status == StatusActive {
			out = append(out, g)
		}
	}
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, g := range s.goals {
		if g.Status == StatusActive {
			active++
		}
	}
	return Stats{
		Created:   s.created,
		Completed: s.completed,
		Failed:    s.failed,
		Active:    active,
		Total:     len(s.goals),
	}
}
