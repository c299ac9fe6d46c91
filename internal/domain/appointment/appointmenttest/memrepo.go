// Package appointmenttest provides an in-memory appointment repository.
package appointmenttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/platform/apperror"
)

type MemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*appointment.Appointment
}

func NewMemRepo() *MemRepo {
	return &MemRepo{items: make(map[uuid.UUID]*appointment.Appointment)}
}

func clone(a *appointment.Appointment) *appointment.Appointment {
	c := *a
	return &c
}

func (m *MemRepo) Insert(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.Status = appointment.StatusScheduled
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.items[a.ID] = clone(a)
	return nil
}

func (m *MemRepo) Get(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("appointment.get", "appointment not found")
	}
	return clone(a), nil
}

func (m *MemRepo) Transition(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("appointment.transition", "appointment not found")
	}
	if a.Status != from {
		return nil, apperror.Conflict("appointment.transition", "appointment was changed by someone else, reload and try again")
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return clone(a), nil
}

func (m *MemRepo) List(_ context.Context, f appointment.Filter, limit, offset int) ([]*appointment.Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.items {
		switch {
		case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
		case f.PatientID != nil && a.PatientID != *f.PatientID:
		case f.Date != "" && a.Date != f.Date:
		case f.Status != "" && a.Status != f.Status:
		default:
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

// Snapshot captures the repository state; the returned function restores it.
func (m *MemRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[uuid.UUID]*appointment.Appointment, len(m.items))
	for id, a := range m.items {
		items[id] = clone(a)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items = items
	}
}
