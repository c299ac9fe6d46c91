package directory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

// Service owns patients and staff. The queue, appointment and encounter
// services look people up through it.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if err := validatePatient("patient.register", p); err != nil {
		return err
	}
	return s.repo.CreatePatient(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		return apperror.Validation("patient.update", "patient id is required")
	}
	if err := validatePatient("patient.update", p); err != nil {
		return err
	}
	return s.repo.UpdatePatient(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, search, limit, offset)
}

// PurgePatient deletes a patient together with their queue entries,
// appointments, vitals, consultations and bills.
func (s *Service) PurgePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePatient(ctx, id)
}

func validatePatient(op string, p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return apperror.Validation(op, "full name is required")
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return apperror.Validation(op, "age must be between 0 and 150")
	}
	if p.Department != nil && !ValidDepartment(*p.Department) {
		return apperror.Validation(op, "unknown department %q", *p.Department)
	}
	if p.Gender != nil {
		switch *p.Gender {
		case "male", "female", "other":
		default:
			return apperror.Validation(op, "gender must be male, female or other")
		}
	}
	return nil
}

func (s *Service) CreateStaff(ctx context.Context, st *Staff) error {
	const op = "staff.create"
	st.FullName = strings.TrimSpace(st.FullName)
	st.Username = strings.TrimSpace(st.Username)
	if st.FullName == "" || st.Username == "" {
		return apperror.Validation(op, "full name and username are required")
	}
	if !validRole(st.Role) {
		return apperror.Validation(op, "invalid role %q", st.Role)
	}
	if st.Role == auth.RoleDoctor {
		if st.Department == nil || !ValidDepartment(*st.Department) {
			return apperror.Validation(op, "doctors need a department (eye, ent or skin)")
		}
	} else if st.Department != nil {
		return apperror.Validation(op, "only doctors belong to a department")
	}
	for _, hm := range []*string{st.ShiftStart, st.ShiftEnd} {
		if hm == nil {
			continue
		}
		if _, err := time.Parse("15:04", *hm); err != nil {
			return apperror.Validation(op, "shift times must be HH:MM")
		}
	}
	return s.repo.CreateStaff(ctx, st)
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetStaff(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	if role != "" && !validRole(role) {
		return nil, 0, apperror.Validation("staff.list", "invalid role %q", role)
	}
	return s.repo.ListStaff(ctx, role, limit, offset)
}

// DoctorsByDepartment lists doctors, optionally filtered to one department.
func (s *Service) DoctorsByDepartment(ctx context.Context, department string) ([]*Staff, error) {
	if department != "" && !ValidDepartment(department) {
		return nil, apperror.Validation("staff.doctors", "unknown department %q", department)
	}
	return s.repo.ListDoctors(ctx, department)
}

// Doctor returns staff member id, failing unless they are a doctor.
func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*Staff, error) {
	st, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.NotFound("staff.doctor", "doctor not found")
		}
		return nil, err
	}
	if !st.IsDoctor() {
		return nil, apperror.Validation("staff.doctor", "staff member is not a doctor")
	}
	return st, nil
}
