// Package events carries committed-state notifications from the domain
// services to live observers (websocket clients, the Redis fan-out).
// Publishing happens after the owning transaction commits and never fails the
// operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	QueueChanged      Type = "queueChanged"
	ConsultationSaved Type = "consultationSaved"
	BillPaid          Type = "billPaid"
)

const (
	TopicConsultations = "consultations"
	TopicBilling       = "billing"
)

// QueueTopic is the per-doctor queue topic.
func QueueTopic(doctorID uuid.UUID) string {
	return fmt.Sprintf("queue:%s", doctorID)
}

// Event is a notification about state that has already been committed.
type Event struct {
	Type      Type            `json:"type"`
	Topic     string          `json:"topic"`
	SubjectID uuid.UUID       `json:"subjectId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an event, marshalling data into the payload. A payload that
// cannot be marshalled is dropped rather than failing the caller.
func New(typ Type, topic string, subject uuid.UUID, at time.Time, data interface{}) Event {
	ev := Event{Type: typ, Topic: topic, SubjectID: subject, Timestamp: at.UTC()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// Publisher is what domain services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Subscriber receives every published event.
type Subscriber interface {
	Notify(ctx context.Context, ev Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event) error

func (f SubscriberFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Bus fans events out to its subscribers synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []Subscriber
	logger zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "events").Logger()}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Publish delivers ev to every subscriber. Subscriber errors are logged.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.Notify(ctx, ev); err != nil {
			b.logger.Warn().Err(err).
				Str("type", string(ev.Type)).
				Str("topic", ev.Topic).
				Msg("event subscriber failed")
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory. Service tests use it to assert
// what was announced.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(typ Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
