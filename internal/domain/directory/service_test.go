package directory

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
	staff    map[uuid.UUID]*Staff
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*Patient),
		staff:    make(map[uuid.UUID]*Staff),
	}
}

func (m *mockRepo) CreatePatient(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperror.NotFound("patient.get", "patient not found")
	}
	return p, nil
}

func (m *mockRepo) UpdatePatient(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return apperror.NotFound("patient.update", "patient not found")
	}
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) DeletePatient(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return apperror.NotFound("patient.delete", "patient not found")
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) ListPatients(_ context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if search == "" || strings.Contains(strings.ToLower(p.FullName), strings.ToLower(search)) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateStaff(_ context.Context, s *Staff) error {
	for _, existing := range m.staff {
		if existing.Username == s.Username {
			return apperror.Conflict("staff.insert", "username %q is already taken", s.Username)
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.staff[s.ID] = s
	return nil
}

func (m *mockRepo) GetStaff(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, apperror.NotFound("staff.get", "staff member not found")
	}
	return s, nil
}

func (m *mockRepo) ListStaff(_ context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	var out []*Staff
	for _, s := range m.staff {
		if role == "" || s.Role == role {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListDoctors(_ context.Context, department string) ([]*Staff, error) {
	var out []*Staff
	for _, s := range m.staff {
		if s.Role == auth.RoleDoctor && (department == "" || s.DepartmentName() == department) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func strPtr(s string) *string { return &s }

func TestRegisterPatient(t *testing.T) {
	svc := NewService(newMockRepo())

	p := &Patient{FullName: "  Amina Njoroge ", Gender: strPtr("female")}
	require.NoError(t, svc.RegisterPatient(context.Background(), p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "Amina Njoroge", p.FullName)

	err := svc.RegisterPatient(context.Background(), &Patient{FullName: "  "})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	err = svc.RegisterPatient(context.Background(), &Patient{FullName: "X", Gender: strPtr("unknown")})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	age := -1
	err = svc.RegisterPatient(context.Background(), &Patient{FullName: "X", Age: &age})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	err = svc.RegisterPatient(context.Background(), &Patient{FullName: "X", Department: strPtr("cardio")})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestUpdatePatient(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	p := &Patient{FullName: "Otieno"}
	require.NoError(t, svc.RegisterPatient(ctx, p))

	p.Phone = strPtr("0712000000")
	require.NoError(t, svc.UpdatePatient(ctx, p))

	err := svc.UpdatePatient(ctx, &Patient{FullName: "Ghost"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	err = svc.UpdatePatient(ctx, &Patient{ID: uuid.New(), FullName: "Ghost"})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestPurgePatient(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	p := &Patient{FullName: "Wanjiru"}
	require.NoError(t, svc.RegisterPatient(ctx, p))
	require.NoError(t, svc.PurgePatient(ctx, p.ID))

	_, err := svc.GetPatient(ctx, p.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.True(t, apperror.Is(svc.PurgePatient(ctx, p.ID), apperror.KindNotFound))
}

func TestCreateStaff(t *testing.T) {
	tests := []struct {
		name  string
		staff Staff
		kind  apperror.Kind
	}{
		{"doctor with department", Staff{FullName: "Dr Eye", Username: "eye1", Role: "doctor", Department: strPtr("eye")}, apperror.KindUnknown},
		{"receptionist", Staff{FullName: "Desk", Username: "desk", Role: "receptionist"}, apperror.KindUnknown},
		{"doctor without department", Staff{FullName: "Dr X", Username: "x", Role: "doctor"}, apperror.KindValidation},
		{"doctor with unknown department", Staff{FullName: "Dr X", Username: "x", Role: "doctor", Department: strPtr("cardio")}, apperror.KindValidation},
		{"receptionist with department", Staff{FullName: "Desk", Username: "d2", Role: "receptionist", Department: strPtr("ent")}, apperror.KindValidation},
		{"unknown role", Staff{FullName: "Nurse", Username: "n", Role: "nurse"}, apperror.KindValidation},
		{"missing username", Staff{FullName: "Nurse", Role: "admin"}, apperror.KindValidation},
		{"bad shift time", Staff{FullName: "Desk", Username: "d3", Role: "receptionist", ShiftStart: strPtr("9am")}, apperror.KindValidation},
		{"shift window", Staff{FullName: "Desk", Username: "d4", Role: "receptionist", ShiftStart: strPtr("08:00"), ShiftEnd: strPtr("17:00")}, apperror.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockRepo())
			st := tt.staff
			err := svc.CreateStaff(context.Background(), &st)
			if tt.kind == apperror.KindUnknown {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, st.ID)
				return
			}
			assert.True(t, apperror.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestCreateStaff_DuplicateUsername(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()
	require.NoError(t, svc.CreateStaff(ctx, &Staff{FullName: "A", Username: "same", Role: "admin"}))
	err := svc.CreateStaff(ctx, &Staff{FullName: "B", Username: "same", Role: "admin"})
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestDoctorsByDepartment(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()
	require.NoError(t, svc.CreateStaff(ctx, &Staff{FullName: "Dr B", Username: "b", Role: "doctor", Department: strPtr("eye")}))
	require.NoError(t, svc.CreateStaff(ctx, &Staff{FullName: "Dr A", Username: "a", Role: "doctor", Department: strPtr("eye")}))
	require.NoError(t, svc.CreateStaff(ctx, &Staff{FullName: "Dr C", Username: "c", Role: "doctor", Department: strPtr("skin")}))

	eye, err := svc.DoctorsByDepartment(ctx, "eye")
	require.NoError(t, err)
	require.Len(t, eye, 2)
	assert.Equal(t, "Dr A", eye[0].FullName)

	all, err := svc.DoctorsByDepartment(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.DoctorsByDepartment(ctx, "cardio")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestDoctor(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	doc := &Staff{FullName: "Dr", Username: "dr", Role: "doctor", Department: strPtr("ent")}
	require.NoError(t, svc.CreateStaff(ctx, doc))
	desk := &Staff{FullName: "Desk", Username: "desk", Role: "receptionist"}
	require.NoError(t, svc.CreateStaff(ctx, desk))

	got, err := svc.Doctor(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ent", got.DepartmentName())

	_, err = svc.Doctor(ctx, desk.ID)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.Doctor(ctx, uuid.New())
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.Equal(t, "doctor not found", apperror.Message(err))
}
