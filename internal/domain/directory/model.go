package directory

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Clinical departments. Each doctor belongs to exactly one.
const (
	DepartmentEye  = "eye"
	DepartmentENT  = "ent"
	DepartmentSkin = "skin"
)

func ValidDepartment(d string) bool {
	switch d {
	case DepartmentEye, DepartmentENT, DepartmentSkin:
		return true
	}
	return false
}

func validRole(r string) bool {
	switch r {
	case auth.RoleAdmin, auth.RoleDoctor, auth.RoleReceptionist:
		return true
	}
	return false
}

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	FullName    string     `json:"fullName"`
	Age         *int       `json:"age,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Address     *string    `json:"address,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	// Department is the patient's home specialty, used to suggest a doctor.
	Department  *string    `json:"department,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Staff struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"fullName"`
	Username   string    `json:"username"`
	Email      *string   `json:"email,omitempty"`
	Role       string    `json:"role"`
	Department *string   `json:"department,omitempty"`
	// ShiftStart and ShiftEnd bound the working day as "15:04".
	ShiftStart *string   `json:"shiftStart,omitempty"`
	ShiftEnd   *string   `json:"shiftEnd,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsDoctor reports whether s can hold a queue.
func (s *Staff) IsDoctor() bool {
	return s.Role == auth.RoleDoctor && s.Department != nil
}

// DepartmentName returns the department or "" for non-clinical staff.
func (s *Staff) DepartmentName() string {
	if s.Department == nil {
		return ""
	}
	return *s.Department
}
