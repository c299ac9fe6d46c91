package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Transition applies from -> to only while the appointment is still in
	// from; otherwise it fails with a conflict.
	Transition(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
}
