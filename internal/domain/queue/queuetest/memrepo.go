// Package queuetest provides an in-memory queue repository for tests of the
// queue and the services built on it.
package queuetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/apperror"
)

type MemRepo struct {
	mu      sync.Mutex
	seq     int64
	entries map[uuid.UUID]*queue.Entry
	events  []*queue.Event

	// BeforeTransition, when set, runs after the conditional check has been
	// decided by the service but before the repository applies it.
	BeforeTransition func(e *queue.Entry)
}

func NewMemRepo() *MemRepo {
	return &MemRepo{entries: make(map[uuid.UUID]*queue.Entry)}
}

func clone(e *queue.Entry) *queue.Entry {
	c := *e
	return &c
}

func (m *MemRepo) Insert(_ context.Context, e *queue.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.entries {
		if other.PatientID == e.PatientID && other.DoctorID == e.DoctorID && other.Status.Open() {
			return apperror.Conflict("queue.insert", "patient already in this doctor's queue")
		}
	}
	m.seq++
	e.ID = uuid.New()
	e.Seq = m.seq
	e.Status = queue.StatusWaiting
	e.CreatedAt = time.Now().UTC()
	m.entries[e.ID] = clone(e)
	return nil
}

func (m *MemRepo) Get(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, apperror.NotFound("queue.get", "queue entry not found")
	}
	return clone(e), nil
}

func (m *MemRepo) Transition(_ context.Context, id uuid.UUID, from, to queue.Status, at time.Time) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, apperror.NotFound("queue.transition", "queue entry not found")
	}
	if m.BeforeTransition != nil {
		m.BeforeTransition(e)
	}
	if e.Status != from {
		return nil, apperror.Conflict("queue.transition", "queue entry was changed by someone else, reload and try again")
	}
	e.Status = to
	switch to {
	case queue.StatusInConsultation:
		e.StartedAt = &at
	case queue.StatusDone, queue.StatusRemoved:
		e.FinishedAt = &at
	}
	return clone(e), nil
}

func (m *MemRepo) HasOpen(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.PatientID == patientID && e.DoctorID == doctorID && e.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemRepo) NextWaiting(_ context.Context, doctorID uuid.UUID) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var head *queue.Entry
	for _, e := range m.entries {
		if e.DoctorID == doctorID && e.Status == queue.StatusWaiting && (head == nil || e.Seq < head.Seq) {
			head = e
		}
	}
	if head == nil {
		return nil, nil
	}
	return clone(head), nil
}

func (m *MemRepo) ListOpen(_ context.Context, doctorID *uuid.UUID) ([]*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*queue.Entry
	for _, e := range m.entries {
		if e.Status.Open() && (doctorID == nil || e.DoctorID == *doctorID) {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (m *MemRepo) FindByAppointment(_ context.Context, appointmentID uuid.UUID) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *queue.Entry
	for _, e := range m.entries {
		if e.AppointmentID != nil && *e.AppointmentID == appointmentID && (newest == nil || e.Seq > newest.Seq) {
			newest = e
		}
	}
	if newest == nil {
		return nil, nil
	}
	return clone(newest), nil
}

func (m *MemRepo) AppendEvent(_ context.Context, ev *queue.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	c := *ev
	m.events = append(m.events, &c)
	return nil
}

func (m *MemRepo) Events(_ context.Context, entryID uuid.UUID) ([]*queue.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*queue.Event
	for _, ev := range m.events {
		if ev.EntryID == entryID {
			c := *ev
			out = append(out, &c)
		}
	}
	return out, nil
}

// Entry returns the stored entry, bypassing the service.
func (m *MemRepo) Entry(id uuid.UUID) *queue.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		return clone(e)
	}
	return nil
}

// EventCount is the length of the transition log.
func (m *MemRepo) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Snapshot captures the repository state; calling the returned function
// restores it. Tests use it to emulate a transaction rollback.
func (m *MemRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.seq
	entries := make(map[uuid.UUID]*queue.Entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = clone(e)
	}
	evs := append([]*queue.Event(nil), m.events...)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.seq = seq
		m.entries = entries
		m.events = evs
	}
}
