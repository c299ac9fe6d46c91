package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/lock"
)

// Directory resolves the people a queue entry refers to.
// *directory.Service satisfies it.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
	Doctor(ctx context.Context, id uuid.UUID) (*directory.Staff, error)
}

// Service runs the per-doctor FIFO. Every mutation holds the doctor's lock
// for one transition and commits the entry and its log row together.
type Service struct {
	repo      Repository
	dir       Directory
	tx        db.TxRunner
	locks     *lock.KeyedMutex
	pub       events.Publisher
	opTimeout time.Duration
	now       func() time.Time
}

func NewService(repo Repository, dir Directory, tx db.TxRunner, locks *lock.KeyedMutex,
	pub events.Publisher, opTimeout time.Duration) *Service {
	return &Service{
		repo:      repo,
		dir:       dir,
		tx:        tx,
		locks:     locks,
		pub:       pub,
		opTimeout: opTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Locks exposes the per-doctor mutex so the appointment and encounter
// services serialise against the same queue.
func (s *Service) Locks() *lock.KeyedMutex { return s.locks }

// Bound applies the operation timeout to ctx.
func (s *Service) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Resolve checks that the patient and doctor exist and fills in or checks
// the department against the doctor's.
func (s *Service) Resolve(ctx context.Context, req EnqueueRequest) (EnqueueRequest, error) {
	const op = "queue.enqueue"
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil {
		return req, apperror.Validation(op, "patient and doctor are required")
	}
	if _, err := s.dir.GetPatient(ctx, req.PatientID); err != nil {
		return req, apperror.Wrap(op, err)
	}
	doc, err := s.dir.Doctor(ctx, req.DoctorID)
	if err != nil {
		return req, apperror.Wrap(op, err)
	}
	if req.Department == "" {
		req.Department = doc.DepartmentName()
	}
	if req.Department != doc.DepartmentName() {
		return req, apperror.Validation(op, "doctor works in %s, not %s", doc.DepartmentName(), req.Department)
	}
	return req, nil
}

// Enqueue appends the patient to the tail of the doctor's queue.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Entry, error) {
	ctx, cancel := s.Bound(ctx)
	defer cancel()

	req, err := s.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	var entry *Entry
	err = s.withDoctor(ctx, req.DoctorID, func(ctx context.Context) error {
		var err error
		entry, err = s.EnqueueWithin(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, entry, nil)
	s.fillPosition(ctx, entry)
	return entry, nil
}

// EnqueueWithin inserts an already resolved request. The caller holds the
// doctor's lock and a transaction.
func (s *Service) EnqueueWithin(ctx context.Context, req EnqueueRequest) (*Entry, error) {
	const op = "queue.enqueue"
	open, err := s.repo.HasOpen(ctx, req.PatientID, req.DoctorID)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if open {
		return nil, apperror.Conflict(op, "patient already in this doctor's queue")
	}
	entry := &Entry{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		Department:    req.Department,
		AppointmentID: req.AppointmentID,
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if err := s.log(ctx, entry.ID, nil, StatusWaiting, entry.CreatedAt); err != nil {
		return nil, err
	}
	return entry, nil
}

// PeekNext returns the earliest waiting entry for the doctor, or nil.
func (s *Service) PeekNext(ctx context.Context, doctorID uuid.UUID) (*Entry, error) {
	e, err := s.repo.NextWaiting(ctx, doctorID)
	if err != nil {
		return nil, apperror.Wrap("queue.peek", err)
	}
	if e != nil {
		e.Position = 1
	}
	return e, nil
}

// StartConsultation moves a waiting entry into the consulting room.
func (s *Service) StartConsultation(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusInConsultation)
}

// Complete closes an entry that is in consultation. It does not create a
// consultation record.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusDone)
}

// Remove cancels a waiting entry.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusRemoved)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Entry, error) {
	ctx, cancel := s.Bound(ctx)
	defer cancel()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap("queue.transition", err)
	}

	var (
		entry *Entry
		from  Status
	)
	err = s.withDoctor(ctx, current.DoctorID, func(ctx context.Context) error {
		var err error
		entry, from, err = s.TransitionWithin(ctx, id, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, entry, &from)
	s.fillPosition(ctx, entry)
	return entry, nil
}

// TransitionWithin applies one state change under the caller's lock and
// transaction and returns the previous status.
func (s *Service) TransitionWithin(ctx context.Context, id uuid.UUID, to Status) (*Entry, Status, error) {
	const op = "queue.transition"
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", apperror.Wrap(op, err)
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, current.Status, illegal(op, current.Status, to)
	}
	at := s.now()
	entry, err := s.repo.Transition(ctx, id, current.Status, to, at)
	if err != nil {
		return nil, current.Status, apperror.Wrap(op, err)
	}
	from := current.Status
	if err := s.log(ctx, id, &from, to, at); err != nil {
		return nil, from, err
	}
	return entry, from, nil
}

// CompleteWithin closes the entry as part of saving a consultation. An entry
// that is already done is returned unchanged with changed=false.
func (s *Service) CompleteWithin(ctx context.Context, id uuid.UUID) (entry *Entry, changed bool, err error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, apperror.Wrap("queue.complete", err)
	}
	if current.Status == StatusDone {
		return current, false, nil
	}
	entry, _, err = s.TransitionWithin(ctx, id, StatusDone)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// FindByAppointment returns the newest entry promoted from the appointment.
func (s *Service) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error) {
	e, err := s.repo.FindByAppointment(ctx, appointmentID)
	return e, apperror.Wrap("queue.by_appointment", err)
}

func illegal(op string, from, to Status) error {
	switch {
	case to == StatusInConsultation && from == StatusInConsultation:
		return apperror.State(op, "patient is already in consultation")
	case to == StatusRemoved && from == StatusInConsultation:
		return apperror.State(op, "patient is already in consultation and cannot be removed")
	case to == StatusDone && from == StatusWaiting:
		return apperror.State(op, "consultation has not been started for this patient")
	case from.Terminal():
		return apperror.State(op, "queue entry is already %s", from)
	}
	return apperror.State(op, "cannot move queue entry from %s to %s", from, to)
}

// Get returns the entry with its current position.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap("queue.get", err)
	}
	s.fillPosition(ctx, e)
	return e, nil
}

// List returns the doctor's open entries in queue order.
func (s *Service) List(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	return s.listOpen(ctx, &doctorID)
}

// ListOpen returns every doctor's open entries, grouped by doctor.
func (s *Service) ListOpen(ctx context.Context) ([]*Entry, error) {
	return s.listOpen(ctx, nil)
}

func (s *Service) listOpen(ctx context.Context, doctorID *uuid.UUID) ([]*Entry, error) {
	entries, err := s.repo.ListOpen(ctx, doctorID)
	if err != nil {
		return nil, apperror.Wrap("queue.list", err)
	}
	assignPositions(entries)
	return entries, nil
}

// History returns the transition log of one entry, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*Event, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, apperror.Wrap("queue.history", err)
	}
	out, err := s.repo.Events(ctx, id)
	return out, apperror.Wrap("queue.history", err)
}

// Announce publishes a queueChanged event. Call it only after the change
// has committed.
func (s *Service) Announce(ctx context.Context, e *Entry, from *Status) {
	data := map[string]interface{}{
		"entryId":   e.ID,
		"patientId": e.PatientID,
		"doctorId":  e.DoctorID,
		"status":    e.Status,
	}
	if from != nil {
		data["from"] = *from
	}
	s.pub.Publish(context.WithoutCancel(ctx),
		events.New(events.QueueChanged, events.QueueTopic(e.DoctorID), e.ID, s.now(), data))
}

func (s *Service) withDoctor(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := s.locks.Lock(ctx, doctorID)
	if err != nil {
		return err
	}
	defer unlock()
	return apperror.Wrap("queue.tx", s.tx.WithTx(ctx, fn))
}

func (s *Service) log(ctx context.Context, id uuid.UUID, from *Status, to Status, at time.Time) error {
	ev := &Event{EntryID: id, From: from, To: to, At: at}
	if actor, ok := auth.StaffIDFromContext(ctx); ok {
		ev.ActorID = &actor
	}
	return apperror.Wrap("queue.log", s.repo.AppendEvent(ctx, ev))
}

// fillPosition sets the rank of a waiting entry. Failures leave it at zero;
// the position is informational.
func (s *Service) fillPosition(ctx context.Context, e *Entry) {
	e.Position = 0
	if e.Status != StatusWaiting {
		return
	}
	entries, err := s.repo.ListOpen(ctx, &e.DoctorID)
	if err != nil {
		return
	}
	assignPositions(entries)
	for _, other := range entries {
		if other.ID == e.ID {
			e.Position = other.Position
			return
		}
	}
}
