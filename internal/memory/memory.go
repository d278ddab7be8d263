// Package memory implements the append-only event log the loop records into.
// The in-memory ordered sequence is the source of truth for order and
// recency; a JSON file mirrors it on every mutation and a SQLite index
// serves typed lookups. The index is derived state, rebuilt from the log at
// startup.
package memory

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/textutil"
)

// Event is a single immutable log entry. Events are never deleted
// individually, only bulk-cleared.
type Event struct {
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

type Log struct {
	mu         sync.Mutex
	events     []Event
	path       string
	index      *Index
	maxContent int
	added      int
	retrieved  int
	log        *logrus.Entry
}

// Stats reports log shape and access counters for the run report.
type Stats struct {
	TotalEvents  int            `json:"total_events"`
	EventsByType map[string]int `json:"events_by_type"`
	Added        int            `json:"added"`
	Retrieved    int            `json:"retrieved"`
}

// NewLog loads the event log from path (starting empty if the file is
// missing or unreadable) and rebuilds the index from it. index may be nil.
func NewLog(path string, maxContent int, index *Index, logger *logrus.Logger) *Log {
	l := &Log{
		path:       path,
		index:      index,
		maxContent: maxContent,
		log:        logger.WithField("component", "memory"),
	}
	l.load()
	if index != nil {
		if err := index.Rebuild(l.events); err != nil {
			l.log.WithError(err).Error("failed to rebuild memory index")
		}
	}
	return l
}

func (l *Log) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.WithError(err).Error("failed to load memory")
		}
		return
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		l.log.WithError(err).Error("memory file is corrupt, starting empty")
		return
	}
	l.events = events
}

// persist rewrites the whole JSON file. Callers hold the lock. Failure is
// logged and swallowed: the in-memory log stays authoritative for the
// process lifetime.
func (l *Log) persist() {
	data, err := json.MarshalIndent(l.events, "", "  ")
	if err != nil {
		l.log.WithError(err).Error("failed to encode memory")
		return
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		l.log.WithError(err).Error("failed to save memory")
	}
}

// Add appends an event: content is truncated to the configured cap, the
// event is stamped with the current time, mirrored to the index, and the
// whole log is persisted before returning.
func (l *Log) Add(eventType, content string, metadata map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if metadata == nil {
		metadata = map[string]any{}
	}
	ev := Event{
		Type:      eventType,
		Content:   textutil.Truncate(content, l.maxContent),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Metadata:  metadata,
	}
	l.events = append(l.events, ev)
	l.added++

	if l.index != nil {
		if err := l.index.Insert(ev); err != nil {
			l.log.WithError(err).Error("failed to index memory event")
		}
	}
	l.persist()
	l.log.WithField("type", eventType).Debug("memory event added")
}

// Recent returns the content of the most recent n events in chronological
// order (the tail of the append order).
func (l *Log) Recent(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retrieved++

	start := len(l.events) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(l.events)-start)
	for _, ev := range l.events[start:] {
		out = append(out, ev.Content)
	}
	return out
}

// ByType returns all events of the given type in chronological order.
func (l *Log) ByType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retrieved++

	var out []Event
	for _, ev := range l.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Search returns events whose content contains query, case-insensitively.
func (l *Log) Search(query string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	query = strings.ToLower(query)
	var out []Event
	for _, ev := range l.events {
		if strings.Contains(strings.ToLower(ev.Content), query) {
			out = append(out, ev)
		}
	}
	return out
}

// Since returns events stamped strictly after the given RFC3339 timestamp.
// Lexicographic comparison is order-correct for UTC RFC3339 strings.
func (l *Log) Since(timestamp string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for _, ev := range l.events {
		if ev.Timestamp > timestamp {
			out = append(out, ev)
		}
	}
	return out
}

// Clear drops every event and persists the empty log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.persist()
	l.log.Info("memory cleared")
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	byType := make(map[string]int)
	for _, ev := range l.events {
		byType[ev.Type]++
	}
	return Stats{
		TotalEvents:  len(l.events),
		EventsByType: byType,
		Added:        l.added,
		Retrieved:    l.retrieved,
	}
}
