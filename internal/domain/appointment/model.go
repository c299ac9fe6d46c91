package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Layouts for the wire format of Date and Time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo allows only scheduled -> completed and scheduled -> cancelled.
func (s Status) CanTransitionTo(to Status) bool {
	return s == StatusScheduled && to.Terminal()
}

type Appointment struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patientId"`
	DoctorID   uuid.UUID `json:"doctorId"`
	Department string    `json:"department"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type BookRequest struct {
	PatientID  uuid.UUID `json:"patientId"`
	DoctorID   uuid.UUID `json:"doctorId"`
	Department string    `json:"department"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Date      string
	Status    Status
}
