package vitals

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, v *VitalsRecord) error
	// Latest returns nil, nil when the patient has no vitals.
	Latest(ctx context.Context, patientID uuid.UUID) (*VitalsRecord, error)
	// History is newest first.
	History(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsRecord, error)
}
