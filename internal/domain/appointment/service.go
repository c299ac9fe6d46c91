package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/db"
)

// Service books appointments and moves them into the queue. Cancel and
// PromoteToQueue hold the doctor's queue lock because they touch the queue.
type Service struct {
	repo  Repository
	dir   queue.Directory
	queue *queue.Service
	tx    db.TxRunner
}

func NewService(repo Repository, dir queue.Directory, q *queue.Service, tx db.TxRunner) *Service {
	return &Service{repo: repo, dir: dir, queue: q, tx: tx}
}

// Book records a scheduled visit. Overlapping slots are allowed.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	const op = "appointment.book"
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil {
		return nil, apperror.Validation(op, "patient and doctor are required")
	}
	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return nil, apperror.Validation(op, "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(TimeLayout, req.Time); err != nil {
		return nil, apperror.Validation(op, "time must be HH:MM")
	}

	ctx, cancel := s.queue.Bound(ctx)
	defer cancel()

	if _, err := s.dir.GetPatient(ctx, req.PatientID); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	doc, err := s.dir.Doctor(ctx, req.DoctorID)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if req.Department == "" {
		req.Department = doc.DepartmentName()
	}
	if req.Department != doc.DepartmentName() {
		return nil, apperror.Validation(op, "doctor works in %s, not %s", doc.DepartmentName(), req.Department)
	}

	a := &Appointment{
		PatientID:  req.PatientID,
		DoctorID:   req.DoctorID,
		Department: req.Department,
		Date:       req.Date,
		Time:       req.Time,
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	return a, nil
}

// Cancel moves a scheduled appointment to cancelled. If it was promoted and
// the patient is still waiting, the queue entry is removed in the same
// transaction. Once the patient is in consultation or has been seen the
// appointment can only end completed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	const op = "appointment.cancel"
	ctx, cancel := s.queue.Bound(ctx)
	defer cancel()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if a.Status.Terminal() {
		return nil, apperror.State(op, "appointment is already %s", a.Status)
	}

	var removed *queue.Entry
	err = s.withDoctor(ctx, a.DoctorID, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(StatusCancelled) {
			return apperror.State(op, "appointment is already %s", current.Status)
		}
		entry, err := s.queue.FindByAppointment(ctx, id)
		if err != nil {
			return err
		}
		if entry != nil {
			switch entry.Status {
			case queue.StatusInConsultation:
				return apperror.State(op, "patient is already in consultation, the appointment cannot be cancelled")
			case queue.StatusDone:
				return apperror.State(op, "patient has already been seen, the appointment cannot be cancelled")
			case queue.StatusWaiting:
				if removed, _, err = s.queue.TransitionWithin(ctx, entry.ID, queue.StatusRemoved); err != nil {
					return err
				}
			}
		}
		a, err = s.repo.Transition(ctx, id, current.Status, StatusCancelled)
		return err
	})
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if removed != nil {
		from := queue.StatusWaiting
		s.queue.Announce(ctx, removed, &from)
	}
	return a, nil
}

// PromoteToQueue enqueues the appointment's patient. The appointment stays
// scheduled until the consultation is saved.
func (s *Service) PromoteToQueue(ctx context.Context, id uuid.UUID) (*queue.Entry, error) {
	const op = "appointment.promote"
	ctx, cancel := s.queue.Bound(ctx)
	defer cancel()

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if a.Status != StatusScheduled {
		return nil, apperror.State(op, "only scheduled appointments can be queued, this one is %s", a.Status)
	}
	apptID := a.ID
	req, err := s.queue.Resolve(ctx, queue.EnqueueRequest{
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		Department:    a.Department,
		AppointmentID: &apptID,
	})
	if err != nil {
		return nil, err
	}

	var entry *queue.Entry
	err = s.withDoctor(ctx, a.DoctorID, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusScheduled {
			return apperror.State(op, "only scheduled appointments can be queued, this one is %s", current.Status)
		}
		existing, err := s.queue.FindByAppointment(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status.Open() {
			return apperror.Conflict(op, "appointment is already in the queue")
		}
		if existing != nil && existing.Status == queue.StatusDone {
			return apperror.State(op, "patient has already been seen for this appointment")
		}
		entry, err = s.queue.EnqueueWithin(ctx, req)
		return err
	})
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	s.queue.Announce(ctx, entry, nil)
	if fresh, err := s.queue.Get(ctx, entry.ID); err == nil {
		entry = fresh
	}
	return entry, nil
}

// CompleteWithin marks the appointment completed as part of saving its
// consultation. The caller holds the doctor's lock and a transaction. An
// appointment that is already completed is returned with changed=false.
func (s *Service) CompleteWithin(ctx context.Context, id uuid.UUID) (a *Appointment, changed bool, err error) {
	const op = "appointment.complete"
	a, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, apperror.Wrap(op, err)
	}
	switch a.Status {
	case StatusCompleted:
		return a, false, nil
	case StatusCancelled:
		return nil, false, apperror.State(op, "appointment was cancelled")
	}
	a, err = s.repo.Transition(ctx, id, StatusScheduled, StatusCompleted)
	if err != nil {
		return nil, false, apperror.Wrap(op, err)
	}
	return a, true, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	return a, apperror.Wrap("appointment.get", err)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperror.Validation("appointment.list", "unknown status %q", f.Status)
	}
	if f.Date != "" {
		if _, err := time.Parse(DateLayout, f.Date); err != nil {
			return nil, 0, apperror.Validation("appointment.list", "date must be YYYY-MM-DD")
		}
	}
	out, total, err := s.repo.List(ctx, f, limit, offset)
	return out, total, apperror.Wrap("appointment.list", err)
}

func (s *Service) withDoctor(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := s.queue.Locks().Lock(ctx, doctorID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.tx.WithTx(ctx, fn)
}
