package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

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

const apptCols = `id, patient_id, doctor_id, department, scheduled_date, scheduled_time, status, created_at, updated_at`

func (r *repoPG) Insert(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Status = StatusScheduled
	date, err := time.Parse(DateLayout, a.Date)
	if err != nil {
		return apperror.Validation("appointment.insert", "date must be YYYY-MM-DD")
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, department, scheduled_date, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Department, date, a.Time, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return apperror.Wrap("appointment.insert", err)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("appointment.get", "appointment not found")
	}
	return a, apperror.Wrap("appointment.get", err)
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to))
	if db.IsNoRows(err) {
		return nil, apperror.Conflict("appointment.transition", "appointment was changed by someone else, reload and try again")
	}
	return a, apperror.Wrap("appointment.transition", err)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Date != "" {
		d, err := time.Parse(DateLayout, f.Date)
		if err != nil {
			return nil, 0, apperror.Validation("appointment.list", "date must be YYYY-MM-DD")
		}
		add("scheduled_date = $%d", d)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Wrap("appointment.list", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointment`+where+
			fmt.Sprintf(` ORDER BY scheduled_date, scheduled_time, created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, apperror.Wrap("appointment.list", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, apperror.Wrap("appointment.list", err)
		}
		out = append(out, a)
	}
	return out, total, apperror.Wrap("appointment.list", rows.Err())
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a    Appointment
		date time.Time
	)
	if err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Department, &date, &a.Time, &a.Status,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Date = date.Format(DateLayout)
	return &a, nil
}
