// Package encountertest provides an in-memory consultation repository.
package encountertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/encounter"
	"github.com/clinic/clinic/internal/platform/apperror"
)

type MemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*encounter.Consultation
	seq   time.Duration

	// FailInsert, when set, is returned by Insert.
	FailInsert error
}

func NewMemRepo() *MemRepo {
	return &MemRepo{items: make(map[uuid.UUID]*encounter.Consultation)}
}

func clone(c *encounter.Consultation) *encounter.Consultation {
	cp := *c
	return &cp
}

func (m *MemRepo) Insert(_ context.Context, c *encounter.Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return m.FailInsert
	}
	for _, other := range m.items {
		if c.SupersedesID == nil && other.SupersedesID == nil && c.QueueEntryID != nil &&
			other.QueueEntryID != nil && *c.QueueEntryID == *other.QueueEntryID {
			return apperror.Conflict("consultation.insert", "a consultation has already been saved for this visit")
		}
		if c.SupersedesID != nil && other.SupersedesID != nil && *c.SupersedesID == *other.SupersedesID {
			return apperror.Conflict("consultation.insert", "consultation has already been amended, reload and try again")
		}
	}
	m.seq++
	c.ID = uuid.New()
	c.CreatedAt = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC).Add(m.seq * time.Minute)
	m.items[c.ID] = clone(c)
	return nil
}

func (m *MemRepo) Get(_ context.Context, id uuid.UUID) (*encounter.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("consultation.get", "consultation not found")
	}
	return clone(c), nil
}

func (m *MemRepo) original(match func(*encounter.Consultation) bool) *encounter.Consultation {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.SupersedesID == nil && match(c) {
			return clone(c)
		}
	}
	return nil
}

func (m *MemRepo) ByQueueEntry(_ context.Context, entryID uuid.UUID) (*encounter.Consultation, error) {
	return m.original(func(c *encounter.Consultation) bool {
		return c.QueueEntryID != nil && *c.QueueEntryID == entryID
	}), nil
}

func (m *MemRepo) ByAppointment(_ context.Context, appointmentID uuid.UUID) (*encounter.Consultation, error) {
	return m.original(func(c *encounter.Consultation) bool {
		return c.AppointmentID != nil && *c.AppointmentID == appointmentID
	}), nil
}

func (m *MemRepo) IsSuperseded(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.SupersedesID != nil && *c.SupersedesID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*encounter.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*encounter.Consultation
	for _, c := range m.items {
		if c.PatientID == patientID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored consultations.
func (m *MemRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Snapshot captures the repository state; the returned function restores it.
func (m *MemRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[uuid.UUID]*encounter.Consultation, len(m.items))
	for id, c := range m.items {
		items[id] = clone(c)
	}
	seq := m.seq
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items = items
		m.seq = seq
	}
}
