package dashboard

import (
	"context"

	"github.com/google/uuid"
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

func (r *repoPG) count(ctx context.Context, op, sql string, args ...interface{}) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, sql, args...).Scan(&n)
	return n, apperror.Wrap(op, err)
}

func (r *repoPG) CountPatients(ctx context.Context, w Window, doctorID *uuid.UUID) (int, error) {
	if doctorID != nil {
		return r.count(ctx, "dashboard.patients", `
			SELECT COUNT(DISTINCT patient_id) FROM consultation
			WHERE doctor_id = $1 AND created_at >= $2 AND created_at < $3`,
			*doctorID, w.Start, w.End)
	}
	return r.count(ctx, "dashboard.patients",
		`SELECT COUNT(*) FROM patient WHERE created_at >= $1 AND created_at < $2`, w.Start, w.End)
}

func (r *repoPG) CountAppointments(ctx context.Context, w Window, doctorID *uuid.UUID) (int, error) {
	return r.count(ctx, "dashboard.appointments", `
		SELECT COUNT(*) FROM appointment
		WHERE scheduled_date BETWEEN $1::date AND $2::date
		  AND ($3::uuid IS NULL OR doctor_id = $3)`,
		w.FromDate, w.ToDate, doctorID)
}

func (r *repoPG) CountDoctors(ctx context.Context) (int, error) {
	return r.count(ctx, "dashboard.doctors", `SELECT COUNT(*) FROM staff WHERE role = 'doctor'`)
}

func (r *repoPG) Revenue(ctx context.Context, w Window, doctorID *uuid.UUID) (float64, error) {
	var total float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(b.amount), 0)::float8
		FROM bill b JOIN consultation c ON c.id = b.consultation_id
		WHERE b.status = 'paid' AND b.paid_at >= $1 AND b.paid_at < $2
		  AND ($3::uuid IS NULL OR c.doctor_id = $3)`,
		w.Start, w.End, doctorID).Scan(&total)
	return total, apperror.Wrap("dashboard.revenue", err)
}

func (r *repoPG) QueueSnapshot(ctx context.Context, doctorID *uuid.UUID) (QueueSnapshot, error) {
	var q QueueSnapshot
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'waiting'),
		       COUNT(*) FILTER (WHERE status = 'in_consultation')
		FROM queue_entry
		WHERE status IN ('waiting', 'in_consultation')
		  AND ($1::uuid IS NULL OR doctor_id = $1)`,
		doctorID).Scan(&q.Waiting, &q.InConsultation)
	return q, apperror.Wrap("dashboard.queue", err)
}

func (r *repoPG) ConsultationsByDay(ctx context.Context, w Window, doctorID *uuid.UUID) (map[string]int, error) {
	const op = "dashboard.series"
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM consultation
		WHERE created_at >= $1 AND created_at < $2 AND supersedes_id IS NULL
		  AND ($4::uuid IS NULL OR doctor_id = $4)
		GROUP BY day`,
		w.Start, w.End, w.Location.String(), doctorID)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			day string
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, apperror.Wrap(op, err)
		}
		out[day] = n
	}
	return out, apperror.Wrap(op, rows.Err())
}
