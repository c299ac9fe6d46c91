package vitals

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

const vitalsCols = `id, patient_id, recorded_by, recorded_at, blood_pressure, heart_rate,
	temperature, weight, height, oxygen_saturation`

func (r *repoPG) Insert(ctx context.Context, v *VitalsRecord) error {
	v.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vitals (id, patient_id, recorded_by, blood_pressure, heart_rate,
			temperature, weight, height, oxygen_saturation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING recorded_at`,
		v.ID, v.PatientID, v.RecordedBy, v.BloodPressure, v.HeartRate,
		v.Temperature, v.Weight, v.Height, v.OxygenSaturation,
	).Scan(&v.RecordedAt)
	return apperror.Wrap("vitals.insert", err)
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID) (*VitalsRecord, error) {
	v, err := scanVitals(r.conn(ctx).QueryRow(ctx,
		`SELECT `+vitalsCols+` FROM vitals WHERE patient_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		patientID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return v, apperror.Wrap("vitals.latest", err)
}

func (r *repoPG) History(ctx context.Context, patientID uuid.UUID, limit int) ([]*VitalsRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+vitalsCols+` FROM vitals WHERE patient_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, apperror.Wrap("vitals.history", err)
	}
	defer rows.Close()

	var out []*VitalsRecord
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, apperror.Wrap("vitals.history", err)
		}
		out = append(out, v)
	}
	return out, apperror.Wrap("vitals.history", rows.Err())
}

func scanVitals(row pgx.Row) (*VitalsRecord, error) {
	var v VitalsRecord
	if err := row.Scan(&v.ID, &v.PatientID, &v.RecordedBy, &v.RecordedAt, &v.BloodPressure, &v.HeartRate,
		&v.Temperature, &v.Weight, &v.Height, &v.OxygenSaturation); err != nil {
		return nil, err
	}
	return &v, nil
}
