// Package events provides the in-process publish/subscribe bus for
// orchestration lifecycle notifications. Delivery is synchronous, on the
// publishing goroutine, in subscription order.
package events

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Type enumerates the closed set of lifecycle events.
type Type string

const (
	IterationStarted   Type = "iteration_started"
	IterationCompleted Type = "iteration_completed"
	CodeGenerated      Type = "code_generated"
	CodeRefactored     Type = "code_refactored"
	GoalCompleted      Type = "goal_completed"
	GoalFailed         Type = "goal_failed"
	ReflectionDone     Type = "reflection_done"
	ResearchDone       Type = "research_done"
	ErrorOccurred      Type = "error_occurred"
)

type Event struct {
	Type      Type
	Data      map[string]any
	Timestamp time.Time
}

// NewEvent stamps an event with the current time.
func NewEvent(typ Type, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Type: typ, Data: data, Timestamp: time.Now()}
}

type Handler func(Event)

type Bus struct {
	mu   sync.Mutex
	subs map[Type][]Handler
	log  *logrus.Entry
}

func NewBus(log *logrus.Logger) *Bus {
	return &Bus{
		subs: make(map[Type][]Handler),
		log:  log.WithField("component", "events"),
	}
}

func (b *Bus) Subscribe(typ Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[typ] = append(b.subs[typ], h)
}

// Unsubscribe removes the first registration of h for typ. Handlers are
// matched by function identity, so the same func value passed to Subscribe
// must be passed here.
func (b *Bus) Unsubscribe(typ Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := reflect.ValueOf(h).Pointer()
	handlers := b.subs[typ]
	for i, existing := range handlers {
		if reflect.ValueOf(existing).Pointer() == target {
			b.subs[typ] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Publish invokes every subscriber for the event's type in subscription
// order. A panicking subscriber is logged and does not prevent the remaining
// subscribers from running. Publish never fails.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs[ev.Type]))
	copy(handlers, b.subs[ev.Type])
	b.mu.Unlock()

	for _, h := range handlers {
		b.invoke(h, ev)
	}
	b.log.WithField("event", string(ev.Type)).Debug("published")
}

func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("event", string(ev.Type)).
				Error(fmt.Sprintf("subscriber failed: %v", r))
		}
	}()
	h(ev)
}

// Clear drops all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Type][]Handler)
}
