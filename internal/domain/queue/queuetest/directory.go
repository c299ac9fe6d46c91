package queuetest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

// Directory is an in-memory patient and staff lookup.
type Directory struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*directory.Patient
	staff    map[uuid.UUID]*directory.Staff
}

func NewDirectory() *Directory {
	return &Directory{
		patients: make(map[uuid.UUID]*directory.Patient),
		staff:    make(map[uuid.UUID]*directory.Staff),
	}
}

func (d *Directory) AddPatient(name string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &directory.Patient{ID: uuid.New(), FullName: name}
	d.patients[p.ID] = p
	return p.ID
}

func (d *Directory) AddDoctor(name, department string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	dept := department
	s := &directory.Staff{ID: uuid.New(), FullName: name, Role: auth.RoleDoctor, Department: &dept}
	d.staff[s.ID] = s
	return s.ID
}

func (d *Directory) AddReceptionist(name string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &directory.Staff{ID: uuid.New(), FullName: name, Role: auth.RoleReceptionist}
	d.staff[s.ID] = s
	return s.ID
}

func (d *Directory) GetPatient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, apperror.NotFound("patient.get", "patient not found")
	}
	return p, nil
}

func (d *Directory) GetStaff(_ context.Context, id uuid.UUID) (*directory.Staff, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.staff[id]
	if !ok {
		return nil, apperror.NotFound("staff.get", "staff member not found")
	}
	return s, nil
}

func (d *Directory) Doctor(ctx context.Context, id uuid.UUID) (*directory.Staff, error) {
	s, err := d.GetStaff(ctx, id)
	if err != nil {
		return nil, apperror.NotFound("staff.doctor", "doctor not found")
	}
	if !s.IsDoctor() {
		return nil, apperror.Validation("staff.doctor", "staff member is not a doctor")
	}
	return s, nil
}
