package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusInConsultation Status = "in_consultation"
	StatusDone           Status = "done"
	StatusRemoved        Status = "removed"
)

var transitions = map[Status][]Status{
	StatusWaiting:        {StatusInConsultation, StatusRemoved},
	StatusInConsultation: {StatusDone},
}

// CanTransitionTo reports whether the state machine allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Open entries occupy the patient's slot in a doctor's queue.
func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusInConsultation
}

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusRemoved
}

// Entry is one patient's place in one doctor's queue. Seq is the insertion
// stamp that orders the FIFO; Position is derived on read and never stored.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	Seq           int64      `json:"seq"`
	PatientID     uuid.UUID  `json:"patientId"`
	DoctorID      uuid.UUID  `json:"doctorId"`
	Department    string     `json:"department"`
	Status        Status     `json:"status"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	Position      int        `json:"position,omitempty"`
}

// Event is one row of the append-only transition log.
type Event struct {
	ID      int64      `json:"id"`
	EntryID uuid.UUID  `json:"entryId"`
	From    *Status    `json:"from,omitempty"`
	To      Status     `json:"to"`
	ActorID *uuid.UUID `json:"actorId,omitempty"`
	At      time.Time  `json:"at"`
}

type EnqueueRequest struct {
	PatientID     uuid.UUID  `json:"patientId"`
	DoctorID      uuid.UUID  `json:"doctorId"`
	Department    string     `json:"department"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
}

// assignPositions sorts entries by doctor then Seq and numbers the waiting
// ones 1..n within each doctor's queue.
func assignPositions(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DoctorID != entries[j].DoctorID {
			return entries[i].DoctorID.String() < entries[j].DoctorID.String()
		}
		return entries[i].Seq < entries[j].Seq
	})
	rank := make(map[uuid.UUID]int)
	for _, e := range entries {
		e.Position = 0
		if e.Status == StatusWaiting {
			rank[e.DoctorID]++
			e.Position = rank[e.DoctorID]
		}
	}
}
