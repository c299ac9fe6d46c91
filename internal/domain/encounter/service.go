package encounter

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinicalrecord"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/vitals"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
)

// HistoryLimit caps how many consultations History loads.
const HistoryLimit = 500

// VitalsReader returns a patient's most recent vitals, or nil.
// *vitals.Service satisfies it.
type VitalsReader interface {
	Latest(ctx context.Context, patientID uuid.UUID) (*vitals.VitalsRecord, error)
}

// Deps are the collaborators of the encounter service.
type Deps struct {
	Repo         Repository
	Directory    queue.Directory
	Queue        *queue.Service
	Appointments *appointment.Service
	Vitals       VitalsReader
	Billing      *billing.Service
	Codec        *clinicalrecord.Codec
	Tx           db.TxRunner
	Publisher    events.Publisher
}

// Service turns a queue entry or appointment into a stored consultation and
// its bill.
type Service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

// OpenEncounter resolves the people and records behind ref. Removed queue
// entries and cancelled appointments are reported as not found.
func (s *Service) OpenEncounter(ctx context.Context, ref Ref) (*Context, error) {
	const op = "encounter.open"
	if (ref.QueueEntryID == nil) == (ref.AppointmentID == nil) {
		return nil, apperror.Validation(op, "exactly one of queueEntryId or appointmentId is required")
	}
	ctx, cancel := s.Queue.Bound(ctx)
	defer cancel()

	ec := &Context{}
	if ref.QueueEntryID != nil {
		entry, err := s.Queue.Get(ctx, *ref.QueueEntryID)
		if err != nil {
			return nil, apperror.Wrap(op, err)
		}
		if entry.Status == queue.StatusRemoved {
			return nil, apperror.NotFound(op, "queue entry was removed")
		}
		ec.QueueEntry = entry
		if entry.AppointmentID != nil {
			if ec.Appointment, err = s.Appointments.Get(ctx, *entry.AppointmentID); err != nil {
				return nil, apperror.Wrap(op, err)
			}
		}
	} else {
		a, err := s.Appointments.Get(ctx, *ref.AppointmentID)
		if err != nil {
			return nil, apperror.Wrap(op, err)
		}
		if a.Status == appointment.StatusCancelled {
			return nil, apperror.NotFound(op, "appointment was cancelled")
		}
		ec.Appointment = a
		entry, err := s.Queue.FindByAppointment(ctx, a.ID)
		if err != nil {
			return nil, apperror.Wrap(op, err)
		}
		if entry != nil && entry.Status != queue.StatusRemoved {
			ec.QueueEntry = entry
		}
	}

	patientID, doctorID := ec.origin()
	var err error
	if ec.Patient, err = s.Directory.GetPatient(ctx, patientID); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if ec.Doctor, err = s.Directory.Doctor(ctx, doctorID); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	ec.Department = ec.Doctor.DepartmentName()
	ec.ExamType = clinicalrecord.TagFor(ec.Department)
	if ec.LatestVitals, err = s.Vitals.Latest(ctx, patientID); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	return ec, nil
}

func (ec *Context) origin() (patientID, doctorID uuid.UUID) {
	if ec.QueueEntry != nil {
		return ec.QueueEntry.PatientID, ec.QueueEntry.DoctorID
	}
	return ec.Appointment.PatientID, ec.Appointment.DoctorID
}

func validateInput(op string, in Input) error {
	if strings.TrimSpace(in.Diagnosis) == "" {
		return apperror.Validation(op, "diagnosis is required")
	}
	return nil
}

// SaveConsultation stores the consultation and its bill and closes the queue
// entry and appointment it came from, all in one transaction under the
// doctor's queue lock. A queue entry that is already done is accepted only
// if no consultation was saved for it.
func (s *Service) SaveConsultation(ctx context.Context, ec *Context, in Input, amount float64, method *billing.PaymentMethod) (*Saved, error) {
	const op = "encounter.save"
	if ec == nil || ec.Doctor == nil || ec.Patient == nil {
		return nil, apperror.Validation(op, "encounter has not been opened")
	}
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, apperror.Validation(op, "amount must be zero or more")
	}
	if method != nil && !method.Valid() {
		return nil, apperror.Validation(op, "payment method must be cash, mpesa or card")
	}
	if err := s.checkActor(ctx, op, ec.Doctor.ID); err != nil {
		return nil, err
	}
	payload, err := s.Codec.Encode(ec.ExamType, in.Exam)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.Queue.Bound(ctx)
	defer cancel()

	var (
		saved  Saved
		closed *queue.Entry
	)
	err = s.withDoctor(ctx, ec.Doctor.ID, func(ctx context.Context) error {
		c := &Consultation{
			PatientID:    ec.Patient.ID,
			DoctorID:     ec.Doctor.ID,
			Department:   ec.Department,
			Symptoms:     in.Symptoms,
			Diagnosis:    strings.TrimSpace(in.Diagnosis),
			Prescription: in.Prescription,
			Notes:        in.Notes,
			Amount:       math.Round(amount*100) / 100,
			ExamPayload:  payload,
		}
		if ec.QueueEntry != nil {
			entry, changed, err := s.Queue.CompleteWithin(ctx, ec.QueueEntry.ID)
			if err != nil {
				return err
			}
			if !changed {
				if err := s.ensureUnsaved(ctx, op, s.Repo.ByQueueEntry, entry.ID); err != nil {
					return err
				}
			} else {
				closed = entry
			}
			c.QueueEntryID = &entry.ID
		}
		if ec.Appointment != nil {
			a, changed, err := s.Appointments.CompleteWithin(ctx, ec.Appointment.ID)
			if err != nil {
				return err
			}
			if !changed {
				if err := s.ensureUnsaved(ctx, op, s.Repo.ByAppointment, a.ID); err != nil {
					return err
				}
			}
			c.AppointmentID = &a.ID
		}
		if err := s.Repo.Insert(ctx, c); err != nil {
			return err
		}
		bill, err := s.Billing.IssueWithin(ctx, c.ID, c.PatientID, c.Amount, method)
		if err != nil {
			return err
		}
		saved = Saved{Consultation: c, Bill: bill}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}

	if closed != nil {
		from := queue.StatusInConsultation
		s.Queue.Announce(ctx, closed, &from)
	}
	s.announce(ctx, saved.Consultation, saved.Bill)
	s.Billing.Announce(ctx, saved.Bill)
	return &saved, nil
}

func (s *Service) ensureUnsaved(ctx context.Context, op string,
	find func(context.Context, uuid.UUID) (*Consultation, error), id uuid.UUID) error {
	existing, err := find(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.Conflict(op, "a consultation has already been saved for this visit")
	}
	return nil
}

// checkActor rejects doctors saving on another doctor's encounter. Callers
// without a staff identity and admins are not restricted.
func (s *Service) checkActor(ctx context.Context, op string, doctorID uuid.UUID) error {
	actor, ok := auth.StaffIDFromContext(ctx)
	if !ok || auth.HasRole(ctx, auth.RoleAdmin) || !auth.HasRole(ctx, auth.RoleDoctor) {
		return nil
	}
	if actor != doctorID {
		return apperror.Validation(op, "this patient is assigned to another doctor")
	}
	return nil
}

// Amend records a correction as a new consultation superseding id. The
// original row and the bill of the visit are left as they are; the
// amendment shares that bill and no new one is issued.
func (s *Service) Amend(ctx context.Context, id, doctorID uuid.UUID, in Input) (*Consultation, error) {
	const op = "encounter.amend"
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	ctx, cancel := s.Queue.Bound(ctx)
	defer cancel()

	orig, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if orig.DoctorID != doctorID {
		return nil, apperror.Validation(op, "only the consulting doctor can amend this consultation")
	}
	payload, err := s.Codec.Encode(clinicalrecord.TagFor(orig.Department), in.Exam)
	if err != nil {
		return nil, err
	}

	c := &Consultation{
		PatientID:     orig.PatientID,
		DoctorID:      orig.DoctorID,
		Department:    orig.Department,
		QueueEntryID:  orig.QueueEntryID,
		AppointmentID: orig.AppointmentID,
		Symptoms:      in.Symptoms,
		Diagnosis:     strings.TrimSpace(in.Diagnosis),
		Prescription:  in.Prescription,
		Notes:         in.Notes,
		Amount:        orig.Amount,
		ExamPayload:   payload,
		SupersedesID:  &orig.ID,
	}
	err = s.withDoctor(ctx, orig.DoctorID, func(ctx context.Context) error {
		superseded, err := s.Repo.IsSuperseded(ctx, orig.ID)
		if err != nil {
			return err
		}
		if superseded {
			return apperror.Conflict(op, "consultation has already been amended, reload and try again")
		}
		return s.Repo.Insert(ctx, c)
	})
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	s.announce(ctx, c, nil)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*HistoryItem, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap("encounter.get", err)
	}
	items, err := s.History(ctx, c.PatientID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return &HistoryItem{Consultation: c, codec: s.Codec}, nil
}

// History lists a patient's consultations newest first. Amendments share the
// bill of the consultation they replace.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]*HistoryItem, error) {
	const op = "encounter.history"
	if _, err := s.Directory.GetPatient(ctx, patientID); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	list, err := s.Repo.ListByPatient(ctx, patientID, HistoryLimit)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}

	byID := make(map[uuid.UUID]*Consultation, len(list))
	superseded := make(map[uuid.UUID]bool)
	var roots []uuid.UUID
	for _, c := range list {
		byID[c.ID] = c
		if c.SupersedesID != nil {
			superseded[*c.SupersedesID] = true
		} else {
			roots = append(roots, c.ID)
		}
	}
	bills, err := s.Billing.ForConsultations(ctx, roots)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}

	out := make([]*HistoryItem, 0, len(list))
	for _, c := range list {
		out = append(out, &HistoryItem{
			Consultation: c,
			Bill:         bills[rootOf(c, byID)],
			Superseded:   superseded[c.ID],
			codec:        s.Codec,
		})
	}
	return out, nil
}

func rootOf(c *Consultation, byID map[uuid.UUID]*Consultation) uuid.UUID {
	for hops := 0; c.SupersedesID != nil && hops <= len(byID); hops++ {
		prev, ok := byID[*c.SupersedesID]
		if !ok {
			return *c.SupersedesID
		}
		c = prev
	}
	return c.ID
}

func (s *Service) announce(ctx context.Context, c *Consultation, bill *billing.Bill) {
	data := map[string]interface{}{
		"consultationId": c.ID,
		"patientId":      c.PatientID,
		"doctorId":       c.DoctorID,
		"amount":         c.Amount,
	}
	if bill != nil {
		data["billId"] = bill.ID
		data["billStatus"] = bill.Status
	}
	if c.SupersedesID != nil {
		data["supersedesId"] = *c.SupersedesID
	}
	s.Publisher.Publish(context.WithoutCancel(ctx),
		events.New(events.ConsultationSaved, events.TopicConsultations, c.ID, s.now(), data))
}

func (s *Service) withDoctor(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := s.Queue.Locks().Lock(ctx, doctorID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.Tx.WithTx(ctx, fn)
}
