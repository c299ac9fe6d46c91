package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

// openEntryConstraint is the partial unique index over open entries.
const openEntryConstraint = "queue_entry_open_key"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const entryCols = `id, seq, patient_id, doctor_id, department, status, appointment_id,
	created_at, started_at, finished_at`

func (r *repoPG) Insert(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	e.Status = StatusWaiting
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_entry (id, patient_id, doctor_id, department, status, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at`,
		e.ID, e.PatientID, e.DoctorID, e.Department, e.Status, e.AppointmentID,
	).Scan(&e.Seq, &e.CreatedAt)
	if db.IsUniqueViolation(err, openEntryConstraint) {
		return apperror.Conflict("queue.insert", "patient already in this doctor's queue")
	}
	return apperror.Wrap("queue.insert", err)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM queue_entry WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("queue.get", "queue entry not found")
	}
	return e, apperror.Wrap("queue.get", err)
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx, `
		UPDATE queue_entry SET
			status = $3,
			started_at = CASE WHEN $3 = 'in_consultation' THEN $4 ELSE started_at END,
			finished_at = CASE WHEN $3 IN ('done', 'removed') THEN $4 ELSE finished_at END
		WHERE id = $1 AND status = $2
		RETURNING `+entryCols,
		id, from, to, at))
	if db.IsNoRows(err) {
		return nil, apperror.Conflict("queue.transition", "queue entry was changed by someone else, reload and try again")
	}
	return e, apperror.Wrap("queue.transition", err)
}

func (r *repoPG) HasOpen(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM queue_entry
			WHERE patient_id = $1 AND doctor_id = $2 AND status IN ('waiting', 'in_consultation')
		)`, patientID, doctorID).Scan(&exists)
	return exists, apperror.Wrap("queue.has_open", err)
}

func (r *repoPG) NextWaiting(ctx context.Context, doctorID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE doctor_id = $1 AND status = 'waiting' ORDER BY seq LIMIT 1`,
		doctorID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return e, apperror.Wrap("queue.next", err)
}

func (r *repoPG) ListOpen(ctx context.Context, doctorID *uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+entryCols+` FROM queue_entry
		WHERE status IN ('waiting', 'in_consultation') AND ($1::uuid IS NULL OR doctor_id = $1)
		ORDER BY seq`, doctorID)
	if err != nil {
		return nil, apperror.Wrap("queue.list", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperror.Wrap("queue.list", err)
		}
		out = append(out, e)
	}
	return out, apperror.Wrap("queue.list", rows.Err())
}

func (r *repoPG) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entry WHERE appointment_id = $1 ORDER BY seq DESC LIMIT 1`,
		appointmentID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return e, apperror.Wrap("queue.by_appointment", err)
}

func (r *repoPG) AppendEvent(ctx context.Context, ev *Event) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_event (entry_id, from_status, to_status, actor_id, at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ev.EntryID, ev.From, ev.To, ev.ActorID, ev.At,
	).Scan(&ev.ID)
	return apperror.Wrap("queue.append_event", err)
}

func (r *repoPG) Events(ctx context.Context, entryID uuid.UUID) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, entry_id, from_status, to_status, actor_id, at
		FROM queue_event WHERE entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, apperror.Wrap("queue.events", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EntryID, &ev.From, &ev.To, &ev.ActorID, &ev.At); err != nil {
			return nil, apperror.Wrap("queue.events", err)
		}
		out = append(out, &ev)
	}
	return out, apperror.Wrap("queue.events", rows.Err())
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.Seq, &e.PatientID, &e.DoctorID, &e.Department, &e.Status, &e.AppointmentID,
		&e.CreatedAt, &e.StartedAt, &e.FinishedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
