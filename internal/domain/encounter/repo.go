package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, c *Consultation) error
	Get(ctx context.Context, id uuid.UUID) (*Consultation, error)
	// ByQueueEntry and ByAppointment return the original consultation of a
	// visit, or nil when none was saved.
	ByQueueEntry(ctx context.Context, entryID uuid.UUID) (*Consultation, error)
	ByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error)
	IsSuperseded(ctx context.Context, id uuid.UUID) (bool, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Consultation, error)
}
