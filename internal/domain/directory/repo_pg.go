package directory

import (
	"context"
	"fmt"
	"strings"

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

const patientCols = `id, full_name, age, gender, phone, address, date_of_birth, department, created_at, updated_at`

const staffCols = `id, full_name, username, email, role, department, shift_start, shift_end, created_at`

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, full_name, age, gender, phone, address, date_of_birth, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Age, p.Gender, p.Phone, p.Address, p.DateOfBirth, p.Department,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return apperror.Wrap("patient.insert", err)
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("patient.get", "patient not found")
	}
	return p, apperror.Wrap("patient.get", err)
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET full_name = $2, age = $3, gender = $4, phone = $5, address = $6,
			date_of_birth = $7, department = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.FullName, p.Age, p.Gender, p.Phone, p.Address, p.DateOfBirth, p.Department,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperror.NotFound("patient.update", "patient not found")
	}
	return apperror.Wrap("patient.update", err)
}

func (r *repoPG) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return apperror.Wrap("patient.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("patient.delete", "patient not found")
	}
	return nil
}

func (r *repoPG) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where, args := "", []interface{}{}
	if s := strings.TrimSpace(search); s != "" {
		where = ` WHERE full_name ILIKE $1 OR phone ILIKE $1`
		args = append(args, "%"+s+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Wrap("patient.list", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient`+where+` ORDER BY created_at DESC`+
			limitOffset(n), args...)
	if err != nil {
		return nil, 0, apperror.Wrap("patient.list", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, apperror.Wrap("patient.list", err)
		}
		out = append(out, p)
	}
	return out, total, apperror.Wrap("patient.list", rows.Err())
}

func (r *repoPG) CreateStaff(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff (id, full_name, username, email, role, department, shift_start, shift_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		s.ID, s.FullName, s.Username, s.Email, s.Role, s.Department, s.ShiftStart, s.ShiftEnd,
	).Scan(&s.CreatedAt)
	if db.IsUniqueViolation(err, "staff_username_key") {
		return apperror.Conflict("staff.insert", "username %q is already taken", s.Username)
	}
	return apperror.Wrap("staff.insert", err)
}

func (r *repoPG) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("staff.get", "staff member not found")
	}
	return s, apperror.Wrap("staff.get", err)
}

func (r *repoPG) ListStaff(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	where, args := "", []interface{}{}
	if role != "" {
		where = ` WHERE role = $1`
		args = append(args, role)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Wrap("staff.list", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+staffCols+` FROM staff`+where+` ORDER BY full_name`+limitOffset(n), args...)
	if err != nil {
		return nil, 0, apperror.Wrap("staff.list", err)
	}
	defer rows.Close()
	out, err := collectStaff(rows)
	return out, total, err
}

func (r *repoPG) ListDoctors(ctx context.Context, department string) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+staffCols+` FROM staff WHERE role = 'doctor' AND ($1 = '' OR department = $1) ORDER BY full_name`,
		department)
	if err != nil {
		return nil, apperror.Wrap("staff.doctors", err)
	}
	defer rows.Close()
	return collectStaff(rows)
}

// limitOffset returns the LIMIT/OFFSET clause for placeholders after the
// first n arguments.
func limitOffset(n int) string {
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.FullName, &p.Age, &p.Gender, &p.Phone, &p.Address,
		&p.DateOfBirth, &p.Department, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	if err := row.Scan(&s.ID, &s.FullName, &s.Username, &s.Email, &s.Role, &s.Department,
		&s.ShiftStart, &s.ShiftEnd, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func collectStaff(rows pgx.Rows) ([]*Staff, error) {
	var out []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, apperror.Wrap("staff.scan", err)
		}
		out = append(out, s)
	}
	return out, apperror.Wrap("staff.scan", rows.Err())
}
