package encounter

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const consultationCols = `id, patient_id, doctor_id, department, queue_entry_id, appointment_id,
	COALESCE(symptoms, ''), diagnosis, COALESCE(prescription, ''), COALESCE(notes, ''),
	amount, exam_payload, supersedes_id, created_at`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var payload []byte
	err := row.Scan(&c.ID, &c.PatientID, &c.DoctorID, &c.Department, &c.QueueEntryID, &c.AppointmentID,
		&c.Symptoms, &c.Diagnosis, &c.Prescription, &c.Notes,
		&c.Amount, &payload, &c.SupersedesID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ExamPayload = payload
	return &c, nil
}

func (r *repoPG) Insert(ctx context.Context, c *Consultation) error {
	const op = "consultation.insert"
	c.ID = uuid.New()
	var payload interface{}
	if len(c.ExamPayload) > 0 {
		payload = string(c.ExamPayload)
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation (id, patient_id, doctor_id, department, queue_entry_id, appointment_id,
			symptoms, diagnosis, prescription, notes, amount, exam_payload, supersedes_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13)
		RETURNING created_at`,
		c.ID, c.PatientID, c.DoctorID, c.Department, c.QueueEntryID, c.AppointmentID,
		c.Symptoms, c.Diagnosis, c.Prescription, c.Notes, c.Amount, payload, c.SupersedesID,
	).Scan(&c.CreatedAt)
	switch {
	case db.IsUniqueViolation(err, "consultation_queue_entry_key"),
		db.IsUniqueViolation(err, "consultation_appointment_key"):
		return apperror.Conflict(op, "a consultation has already been saved for this visit")
	case db.IsUniqueViolation(err, "consultation_supersedes_key"):
		return apperror.Conflict(op, "consultation has already been amended, reload and try again")
	}
	return apperror.Wrap(op, err)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+` FROM consultation WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("consultation.get", "consultation not found")
	}
	return c, apperror.Wrap("consultation.get", err)
}

func (r *repoPG) original(ctx context.Context, op, column string, id uuid.UUID) (*Consultation, error) {
	c, err := scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+` FROM consultation
		WHERE `+column+` = $1 AND supersedes_id IS NULL
		ORDER BY created_at LIMIT 1`, id))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return c, apperror.Wrap(op, err)
}

func (r *repoPG) ByQueueEntry(ctx context.Context, entryID uuid.UUID) (*Consultation, error) {
	return r.original(ctx, "consultation.by_queue_entry", "queue_entry_id", entryID)
}

func (r *repoPG) ByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error) {
	return r.original(ctx, "consultation.by_appointment", "appointment_id", appointmentID)
}

func (r *repoPG) IsSuperseded(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consultation WHERE supersedes_id = $1)`, id).Scan(&exists)
	return exists, apperror.Wrap("consultation.is_superseded", err)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consultationCols+` FROM consultation WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, apperror.Wrap("consultation.list", err)
	}
	defer rows.Close()
	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, apperror.Wrap("consultation.list", err)
		}
		out = append(out, c)
	}
	return out, apperror.Wrap("consultation.list", rows.Err())
}
