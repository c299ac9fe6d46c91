package encounter

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinicalrecord"
	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/vitals"
)

// Ref points at the origin of an encounter: a queue entry or an appointment.
type Ref struct {
	QueueEntryID  *uuid.UUID `json:"queueEntryId,omitempty"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
}

// Context is everything the consulting doctor needs before writing the
// consultation. It is rebuilt from storage on every save.
type Context struct {
	Patient      *directory.Patient       `json:"patient"`
	Doctor       *directory.Staff         `json:"doctor"`
	Department   string                   `json:"department"`
	ExamType     clinicalrecord.Tag       `json:"examType"`
	QueueEntry   *queue.Entry             `json:"queueEntry,omitempty"`
	Appointment  *appointment.Appointment `json:"appointment,omitempty"`
	LatestVitals *vitals.VitalsRecord     `json:"latestVitals,omitempty"`
}

// Input is what the doctor writes.
type Input struct {
	Symptoms     string                `json:"symptoms"`
	Diagnosis    string                `json:"diagnosis"`
	Prescription string                `json:"prescription"`
	Notes        string                `json:"notes"`
	Exam         clinicalrecord.Fields `json:"exam"`
}

// Consultation is immutable once stored. Corrections are new rows that
// point at the row they replace through SupersedesID.
type Consultation struct {
	ID            uuid.UUID              `json:"id"`
	PatientID     uuid.UUID              `json:"patientId"`
	DoctorID      uuid.UUID              `json:"doctorId"`
	Department    string                 `json:"department"`
	QueueEntryID  *uuid.UUID             `json:"queueEntryId,omitempty"`
	AppointmentID *uuid.UUID             `json:"appointmentId,omitempty"`
	Symptoms      string                 `json:"symptoms"`
	Diagnosis     string                 `json:"diagnosis"`
	Prescription  string                 `json:"prescription"`
	Notes         string                 `json:"notes"`
	Amount        float64                `json:"amount"`
	ExamPayload   clinicalrecord.Payload `json:"-"`
	SupersedesID  *uuid.UUID             `json:"supersedesId,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// HistoryItem is one consultation in a patient's history together with the
// bill of the visit. The exam payload is decoded on first use.
type HistoryItem struct {
	*Consultation
	// Bill is the visit's bill. Amendments never get a bill of their own,
	// so every version in a chain carries the bill issued for the root.
	Bill       *billing.Bill `json:"bill,omitempty"`
	Superseded bool          `json:"superseded"`

	codec *clinicalrecord.Codec
	once  sync.Once
	exam  clinicalrecord.Record
}

// Exam decodes the stored payload. Unreadable payloads come back as an
// empty generic record.
func (h *HistoryItem) Exam() clinicalrecord.Record {
	h.once.Do(func() {
		h.exam = h.codec.Decode(h.ExamPayload)
	})
	return h.exam
}

// Saved is the result of SaveConsultation.
type Saved struct {
	Consultation *Consultation `json:"consultation"`
	Bill         *billing.Bill `json:"bill"`
}
