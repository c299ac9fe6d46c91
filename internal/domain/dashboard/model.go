package dashboard

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the format of range bounds and series buckets.
const DateLayout = "2006-01-02"

// MaxRangeDays bounds a single summary.
const MaxRangeDays = 366

// Range is an inclusive span of calendar days in the clinic's time zone.
type Range struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered.
func (r Range) Days() int {
	from := time.Date(r.From.Year(), r.From.Month(), r.From.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(r.To.Year(), r.To.Month(), r.To.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours()/24) + 1
}

// Scope narrows a summary to one doctor. The zero value covers the clinic.
type Scope struct {
	DoctorID *uuid.UUID
}

// Window is a Range resolved to instants: [Start, End).
type Window struct {
	Start    time.Time
	End      time.Time
	FromDate string
	ToDate   string
	Location *time.Location
}

type DayCount struct {
	Date          string `json:"date"`
	Consultations int    `json:"consultations"`
}

type QueueSnapshot struct {
	Waiting        int `json:"waiting"`
	InConsultation int `json:"inConsultation"`
}

type Summary struct {
	From             string        `json:"from"`
	To               string        `json:"to"`
	DoctorID         *uuid.UUID    `json:"doctorId,omitempty"`
	PatientCount     int           `json:"patientCount"`
	AppointmentCount int           `json:"appointmentCount"`
	DoctorCount      int           `json:"doctorCount"`
	Revenue          float64       `json:"revenue"`
	WaitingQueue     QueueSnapshot `json:"waitingQueue"`
	DailySeries      []DayCount    `json:"dailySeries"`
}
