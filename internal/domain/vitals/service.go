package vitals

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/apperror"
)

// HistoryLimit caps how many readings History returns.
const HistoryLimit = 200

// PatientLookup resolves patients; *directory.Service satisfies it.
type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

type Service struct {
	repo      Repository
	patients  PatientLookup
	opTimeout time.Duration
}

func NewService(repo Repository, patients PatientLookup, opTimeout time.Duration) *Service {
	return &Service{repo: repo, patients: patients, opTimeout: opTimeout}
}

var bloodPressurePattern = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)

// Validate checks a set of measurements without storing them.
func (m *Measurements) Validate() error {
	const op = "vitals.validate"
	m.BloodPressure = strings.ReplaceAll(strings.TrimSpace(m.BloodPressure), " ", "")
	if m.BloodPressure == "" {
		return apperror.Validation(op, "blood pressure is required")
	}
	if !bloodPressurePattern.MatchString(m.BloodPressure) {
		return apperror.Validation(op, "blood pressure must look like 120/80")
	}
	if m.OxygenSaturation != nil && (*m.OxygenSaturation < 0 || *m.OxygenSaturation > 100) {
		return apperror.Validation(op, "oxygen saturation must be between 0 and 100%%")
	}
	if m.Temperature != nil && (*m.Temperature < 30 || *m.Temperature > 45) {
		return apperror.Validation(op, "temperature must be between 30 and 45 °C")
	}
	if m.HeartRate != nil && *m.HeartRate < 0 {
		return apperror.Validation(op, "heart rate cannot be negative")
	}
	if m.Weight != nil && *m.Weight < 0 {
		return apperror.Validation(op, "weight cannot be negative")
	}
	if m.Height != nil && *m.Height < 0 {
		return apperror.Validation(op, "height cannot be negative")
	}
	return nil
}

// Record validates and appends a reading for an existing patient.
func (s *Service) Record(ctx context.Context, patientID uuid.UUID, m Measurements, recordedBy *uuid.UUID) (*VitalsRecord, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, apperror.Wrap("vitals.record", err)
	}
	v := &VitalsRecord{PatientID: patientID, RecordedBy: recordedBy, Measurements: m}
	if err := s.repo.Insert(ctx, v); err != nil {
		return nil, apperror.Wrap("vitals.record", err)
	}
	return v, nil
}

// Latest returns the most recent reading, or nil when there is none.
func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*VitalsRecord, error) {
	v, err := s.repo.Latest(ctx, patientID)
	return v, apperror.Wrap("vitals.latest", err)
}

// History returns readings newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*VitalsRecord, error) {
	out, err := s.repo.History(ctx, patientID, HistoryLimit)
	return out, apperror.Wrap("vitals.history", err)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
