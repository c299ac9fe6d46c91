package billing

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

const billCols = `id, consultation_id, patient_id, amount, status, payment_method, created_at, paid_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.ConsultationID, &b.PatientID, &b.Amount, &b.Status,
		&b.PaymentMethod, &b.CreatedAt, &b.PaidAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repoPG) Insert(ctx context.Context, b *Bill) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bill (id, consultation_id, patient_id, amount, status, payment_method, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		b.ID, b.ConsultationID, b.PatientID, b.Amount, b.Status, b.PaymentMethod, b.PaidAt,
	).Scan(&b.CreatedAt)
	if db.IsUniqueViolation(err, "bill_consultation_key") {
		return apperror.Conflict("billing.insert", "consultation already has a bill")
	}
	return apperror.Wrap("billing.insert", err)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("billing.get", "bill not found")
	}
	return b, apperror.Wrap("billing.get", err)
}

func (r *repoPG) MarkPaid(ctx context.Context, id uuid.UUID, method PaymentMethod, at time.Time) (*Bill, error) {
	b, err := scanBill(r.conn(ctx).QueryRow(ctx, `
		UPDATE bill SET status = 'paid', payment_method = $2, paid_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+billCols, id, method, at))
	if db.IsNoRows(err) {
		return nil, apperror.Conflict("billing.mark_paid", "bill was changed by someone else, reload and try again")
	}
	return b, apperror.Wrap("billing.mark_paid", err)
}

func (r *repoPG) ByConsultations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Bill, error) {
	out := make(map[uuid.UUID]*Bill, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+billCols+` FROM bill WHERE consultation_id = ANY($1)`, ids)
	if err != nil {
		return nil, apperror.Wrap("billing.by_consultations", err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, apperror.Wrap("billing.by_consultations", err)
		}
		out[b.ConsultationID] = b
	}
	return out, apperror.Wrap("billing.by_consultations", rows.Err())
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bill`+clause, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Wrap("billing.list", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+billCols+` FROM bill%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
			clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperror.Wrap("billing.list", err)
	}
	defer rows.Close()
	var out []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, apperror.Wrap("billing.list", err)
		}
		out = append(out, b)
	}
	return out, total, apperror.Wrap("billing.list", rows.Err())
}
