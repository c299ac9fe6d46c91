package dashboard

import (
	"context"

	"github.com/google/uuid"
)

// Repository runs the read-only aggregate queries behind a summary.
type Repository interface {
	// CountPatients counts patients registered in the window or, for a
	// doctor, distinct patients the doctor consulted in it.
	CountPatients(ctx context.Context, w Window, doctorID *uuid.UUID) (int, error)
	CountAppointments(ctx context.Context, w Window, doctorID *uuid.UUID) (int, error)
	CountDoctors(ctx context.Context) (int, error)
	Revenue(ctx context.Context, w Window, doctorID *uuid.UUID) (float64, error)
	QueueSnapshot(ctx context.Context, doctorID *uuid.UUID) (QueueSnapshot, error)
	// ConsultationsByDay buckets original consultations by local calendar
	// day. Days without consultations are absent.
	ConsultationsByDay(ctx context.Context, w Window, doctorID *uuid.UUID) (map[string]int, error)
}
