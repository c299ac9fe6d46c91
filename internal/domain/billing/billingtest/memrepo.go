// Package billingtest provides an in-memory bill repository.
package billingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/apperror"
)

type MemRepo struct {
	mu    sync.Mutex
	bills map[uuid.UUID]*billing.Bill
	seq   time.Duration
}

func NewMemRepo() *MemRepo {
	return &MemRepo{bills: make(map[uuid.UUID]*billing.Bill)}
}

func clone(b *billing.Bill) *billing.Bill {
	c := *b
	return &c
}

func (m *MemRepo) Insert(_ context.Context, b *billing.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.bills {
		if other.ConsultationID == b.ConsultationID {
			return apperror.Conflict("billing.insert", "consultation already has a bill")
		}
	}
	m.seq++
	b.ID = uuid.New()
	b.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(m.seq * time.Second)
	m.bills[b.ID] = clone(b)
	return nil
}

func (m *MemRepo) Get(_ context.Context, id uuid.UUID) (*billing.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, apperror.NotFound("billing.get", "bill not found")
	}
	return clone(b), nil
}

func (m *MemRepo) MarkPaid(_ context.Context, id uuid.UUID, method billing.PaymentMethod, at time.Time) (*billing.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok || b.Status != billing.StatusPending {
		return nil, apperror.Conflict("billing.mark_paid", "bill was changed by someone else, reload and try again")
	}
	b.Status = billing.StatusPaid
	b.PaymentMethod = &method
	b.PaidAt = &at
	return clone(b), nil
}

func (m *MemRepo) ByConsultations(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[uuid.UUID]*billing.Bill)
	for _, b := range m.bills {
		if want[b.ConsultationID] {
			out[b.ConsultationID] = clone(b)
		}
	}
	return out, nil
}

func (m *MemRepo) List(_ context.Context, f billing.Filter, limit, offset int) ([]*billing.Bill, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*billing.Bill
	for _, b := range m.bills {
		if f.PatientID != nil && b.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, clone(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
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

// Count returns the number of stored bills.
func (m *MemRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bills)
}

// Snapshot captures the repository state; the returned function restores it.
func (m *MemRepo) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	bills := make(map[uuid.UUID]*billing.Bill, len(m.bills))
	for id, b := range m.bills {
		bills[id] = clone(b)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.bills = bills
	}
}
