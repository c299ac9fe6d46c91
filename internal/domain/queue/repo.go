package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert assigns ID, Seq and CreatedAt. A second open entry for the same
	// patient and doctor fails with a conflict.
	Insert(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// Transition moves the entry from -> to only if it is still in from,
	// stamping started_at or finished_at. It fails with a conflict when the
	// entry has moved on.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Entry, error)
	HasOpen(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	// NextWaiting returns nil, nil when the doctor has nobody waiting.
	NextWaiting(ctx context.Context, doctorID uuid.UUID) (*Entry, error)
	// ListOpen returns waiting and in-consultation entries ordered by Seq,
	// for one doctor or, with a nil doctorID, for everybody.
	ListOpen(ctx context.Context, doctorID *uuid.UUID) ([]*Entry, error)
	// FindByAppointment returns the newest entry promoted from the
	// appointment, or nil, nil.
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error)
	AppendEvent(ctx context.Context, ev *Event) error
	Events(ctx context.Context, entryID uuid.UUID) ([]*Event, error)
}
