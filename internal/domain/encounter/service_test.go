package encounter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/appointment/appointmenttest"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/billing/billingtest"
	"github.com/clinic/clinic/internal/domain/clinicalrecord"
	"github.com/clinic/clinic/internal/domain/encounter"
	"github.com/clinic/clinic/internal/domain/encounter/encountertest"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/queue/queuetest"
	"github.com/clinic/clinic/internal/domain/vitals"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/lock"
)

type stubVitals map[uuid.UUID]*vitals.VitalsRecord

func (s stubVitals) Latest(_ context.Context, patientID uuid.UUID) (*vitals.VitalsRecord, error) {
	return s[patientID], nil
}

type fixture struct {
	svc    *encounter.Service
	queue  *queue.Service
	appts  *appointment.Service
	repo   *encountertest.MemRepo
	qrepo  *queuetest.MemRepo
	arepo  *appointmenttest.MemRepo
	brepo  *billingtest.MemRepo
	dir    *queuetest.Directory
	vitals stubVitals
	locks  *lock.KeyedMutex
	rec    *events.Recorder
	doctor uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   encountertest.NewMemRepo(),
		qrepo:  queuetest.NewMemRepo(),
		arepo:  appointmenttest.NewMemRepo(),
		brepo:  billingtest.NewMemRepo(),
		dir:    queuetest.NewDirectory(),
		vitals: stubVitals{},
		locks:  lock.NewKeyedMutex(),
		rec:    &events.Recorder{},
	}
	tx := queuetest.RollbackTx{Repos: []queuetest.Snapshotter{f.repo, f.qrepo, f.arepo, f.brepo}}
	f.doctor = f.dir.AddDoctor("Dr Njoroge", "eye")
	f.queue = queue.NewService(f.qrepo, f.dir, tx, f.locks, f.rec, time.Second)
	f.appts = appointment.NewService(f.arepo, f.dir, f.queue, tx)
	f.svc = encounter.NewService(encounter.Deps{
		Repo:         f.repo,
		Directory:    f.dir,
		Queue:        f.queue,
		Appointments: f.appts,
		Vitals:       f.vitals,
		Billing:      billing.NewService(f.brepo, f.rec, time.Second),
		Codec:        clinicalrecord.NewCodec(zerolog.Nop()),
		Tx:           tx,
		Publisher:    f.rec,
	})
	return f
}

// inConsultation queues a new patient for the doctor and starts the visit.
func (f *fixture) inConsultation(t *testing.T) *queue.Entry {
	t.Helper()
	ctx := context.Background()
	e, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{PatientID: f.dir.AddPatient("Akinyi"), DoctorID: f.doctor})
	require.NoError(t, err)
	e, err = f.queue.StartConsultation(ctx, e.ID)
	require.NoError(t, err)
	return e
}

func (f *fixture) open(t *testing.T, ref encounter.Ref) *encounter.Context {
	t.Helper()
	ec, err := f.svc.OpenEncounter(context.Background(), ref)
	require.NoError(t, err)
	return ec
}

func input() encounter.Input {
	return encounter.Input{
		Symptoms:  "blurred vision",
		Diagnosis: "myopia",
		Exam:      clinicalrecord.Fields{"od_visual_acuity": "6/12", "os_visual_acuity": "6/9"},
	}
}

func TestOpenEncounter_FromQueueEntry(t *testing.T) {
	f := newFixture(t)
	entry := f.inConsultation(t)
	bp := &vitals.VitalsRecord{PatientID: entry.PatientID, Measurements: vitals.Measurements{BloodPressure: "120/80"}}
	f.vitals[entry.PatientID] = bp

	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})
	assert.Equal(t, entry.PatientID, ec.Patient.ID)
	assert.Equal(t, f.doctor, ec.Doctor.ID)
	assert.Equal(t, "eye", ec.Department)
	assert.Equal(t, clinicalrecord.TagEye, ec.ExamType)
	assert.Nil(t, ec.Appointment)
	assert.Same(t, bp, ec.LatestVitals)
}

func TestOpenEncounter_StaleReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{PatientID: f.dir.AddPatient("A"), DoctorID: f.doctor})
	require.NoError(t, err)
	_, err = f.queue.Remove(ctx, e.ID)
	require.NoError(t, err)
	_, err = f.svc.OpenEncounter(ctx, encounter.Ref{QueueEntryID: &e.ID})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	missing := uuid.New()
	_, err = f.svc.OpenEncounter(ctx, encounter.Ref{QueueEntryID: &missing})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	a, err := f.appts.Book(ctx, appointment.BookRequest{PatientID: f.dir.AddPatient("B"), DoctorID: f.doctor, Date: "2026-05-04", Time: "08:00"})
	require.NoError(t, err)
	_, err = f.appts.Cancel(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.OpenEncounter(ctx, encounter.Ref{AppointmentID: &a.ID})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = f.svc.OpenEncounter(ctx, encounter.Ref{})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = f.svc.OpenEncounter(ctx, encounter.Ref{QueueEntryID: &e.ID, AppointmentID: &a.ID})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestSaveConsultation_ClosesQueueEntryAndBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.inConsultation(t)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})

	saved, err := f.svc.SaveConsultation(ctx, ec, input(), 1500, nil)
	require.NoError(t, err)

	assert.Equal(t, queue.StatusDone, f.qrepo.Entry(entry.ID).Status)
	assert.Equal(t, "myopia", saved.Consultation.Diagnosis)
	require.NotNil(t, saved.Consultation.QueueEntryID)
	assert.Equal(t, entry.ID, *saved.Consultation.QueueEntryID)
	assert.Equal(t, billing.StatusPending, saved.Bill.Status)
	assert.Equal(t, saved.Consultation.ID, saved.Bill.ConsultationID)
	assert.Equal(t, 1500.0, saved.Bill.Amount)
	assert.Equal(t, 1, f.brepo.Count())

	assert.Len(t, f.rec.OfType(events.ConsultationSaved), 1)
	assert.Len(t, f.rec.OfType(events.QueueChanged), 3)
	assert.Empty(t, f.rec.OfType(events.BillPaid))
}

func TestSaveConsultation_PaidAtSave(t *testing.T) {
	f := newFixture(t)
	entry := f.inConsultation(t)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})
	cash := billing.MethodCash

	saved, err := f.svc.SaveConsultation(context.Background(), ec, input(), 700, &cash)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, saved.Bill.Status)
	require.NotNil(t, saved.Bill.PaidAt)
	assert.Len(t, f.rec.OfType(events.BillPaid), 1)
}

func TestSaveConsultation_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.inConsultation(t)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})

	blank := input()
	blank.Diagnosis = "  "
	_, err := f.svc.SaveConsultation(ctx, ec, blank, 100, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.svc.SaveConsultation(ctx, ec, input(), -5, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	bad := input()
	bad.Exam = clinicalrecord.Fields{"ear_canal": "clear"}
	_, err = f.svc.SaveConsultation(ctx, ec, bad, 100, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	assert.Equal(t, queue.StatusInConsultation, f.qrepo.Entry(entry.ID).Status)
	assert.Zero(t, f.repo.Count())
	assert.Zero(t, f.brepo.Count())
}

func TestSaveConsultation_WaitingEntryIsStateError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{PatientID: f.dir.AddPatient("A"), DoctorID: f.doctor})
	require.NoError(t, err)
	ec := f.open(t, encounter.Ref{QueueEntryID: &e.ID})

	_, err = f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindState))
	assert.Equal(t, "consultation has not been started for this patient", apperror.Message(err))
	assert.Zero(t, f.repo.Count())
	assert.Zero(t, f.brepo.Count())
}

func TestSaveConsultation_DoneEntryIsIdempotentOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.inConsultation(t)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})
	_, err := f.queue.Complete(ctx, entry.ID)
	require.NoError(t, err)
	before := len(f.rec.OfType(events.QueueChanged))

	saved, err := f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.NoError(t, err)
	assert.NotNil(t, saved.Bill)
	assert.Len(t, f.rec.OfType(events.QueueChanged), before)

	_, err = f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	assert.Equal(t, 1, f.repo.Count())
	assert.Equal(t, 1, f.brepo.Count())
}

func TestSaveConsultation_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.appts.Book(ctx, appointment.BookRequest{PatientID: f.dir.AddPatient("A"), DoctorID: f.doctor, Date: "2026-05-04", Time: "08:00"})
	require.NoError(t, err)
	entry, err := f.appts.PromoteToQueue(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.queue.StartConsultation(ctx, entry.ID)
	require.NoError(t, err)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})
	logged := f.qrepo.EventCount()

	f.repo.FailInsert = errors.New("disk full")
	_, err = f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.Error(t, err)

	assert.Equal(t, queue.StatusInConsultation, f.qrepo.Entry(entry.ID).Status)
	assert.Equal(t, logged, f.qrepo.EventCount())
	got, err := f.appts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, got.Status)
	assert.Zero(t, f.brepo.Count())
}

func TestSaveConsultation_FromPromotedAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.appts.Book(ctx, appointment.BookRequest{PatientID: f.dir.AddPatient("A"), DoctorID: f.doctor, Date: "2026-05-04", Time: "08:00"})
	require.NoError(t, err)
	entry, err := f.appts.PromoteToQueue(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.queue.StartConsultation(ctx, entry.ID)
	require.NoError(t, err)

	ec := f.open(t, encounter.Ref{AppointmentID: &a.ID})
	require.NotNil(t, ec.QueueEntry)
	assert.Equal(t, entry.ID, ec.QueueEntry.ID)

	saved, err := f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.NoError(t, err)
	require.NotNil(t, saved.Consultation.AppointmentID)
	assert.Equal(t, queue.StatusDone, f.qrepo.Entry(entry.ID).Status)
	got, err := f.appts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, got.Status)
}

func TestSaveConsultation_AppointmentOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.appts.Book(ctx, appointment.BookRequest{PatientID: f.dir.AddPatient("A"), DoctorID: f.doctor, Date: "2026-05-04", Time: "08:00"})
	require.NoError(t, err)
	ec := f.open(t, encounter.Ref{AppointmentID: &a.ID})
	assert.Nil(t, ec.QueueEntry)

	saved, err := f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.NoError(t, err)
	assert.Nil(t, saved.Consultation.QueueEntryID)

	_, err = f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	assert.Equal(t, 1, f.brepo.Count())
}

func TestSaveConsultation_OtherDoctorRejected(t *testing.T) {
	f := newFixture(t)
	entry := f.inConsultation(t)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})
	other := f.dir.AddDoctor("Dr Kiptoo", "eye")

	ctx := auth.WithIdentity(context.Background(), other.String(), []string{auth.RoleDoctor})
	_, err := f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	ctx = auth.WithIdentity(context.Background(), f.doctor.String(), []string{auth.RoleDoctor})
	_, err = f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	assert.NoError(t, err)
}

func TestSaveConsultation_TimesOutWhileQueueIsBusy(t *testing.T) {
	f := newFixture(t)
	entry := f.inConsultation(t)
	ec := f.open(t, encounter.Ref{QueueEntryID: &entry.ID})

	unlock, err := f.locks.Lock(context.Background(), f.doctor)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = f.svc.SaveConsultation(ctx, ec, input(), 100, nil)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindTimeout))
	assert.True(t, apperror.Retryable(err))
	assert.Equal(t, queue.StatusInConsultation, f.qrepo.Entry(entry.ID).Status)
	assert.Zero(t, f.repo.Count())
}

func TestHistoryAndAmend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.inConsultation(t)
	saved, err := f.svc.SaveConsultation(ctx, f.open(t, encounter.Ref{QueueEntryID: &first.ID}), input(), 1000, nil)
	require.NoError(t, err)

	e, err := f.queue.Enqueue(ctx, queue.EnqueueRequest{PatientID: first.PatientID, DoctorID: f.doctor})
	require.NoError(t, err)
	_, err = f.queue.StartConsultation(ctx, e.ID)
	require.NoError(t, err)
	second, err := f.svc.SaveConsultation(ctx, f.open(t, encounter.Ref{QueueEntryID: &e.ID}), encounter.Input{Diagnosis: "review"}, 500, nil)
	require.NoError(t, err)

	items, err := f.svc.History(ctx, first.PatientID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.Consultation.ID, items[0].ID)
	assert.Equal(t, saved.Consultation.ID, items[1].ID)
	assert.Equal(t, second.Bill.ID, items[0].Bill.ID)

	exam := items[1].Exam()
	assert.Equal(t, clinicalrecord.TagEye, exam.Tag)
	eye, ok := exam.Eye()
	require.True(t, ok)
	assert.Equal(t, "6/12", eye.Right.VisualAcuity)
	assert.Nil(t, eye.Refraction)

	fix := input()
	fix.Diagnosis = "myopia with astigmatism"
	amended, err := f.svc.Amend(ctx, saved.Consultation.ID, f.doctor, fix)
	require.NoError(t, err)
	require.NotNil(t, amended.SupersedesID)
	assert.Equal(t, saved.Consultation.ID, *amended.SupersedesID)
	assert.Equal(t, 1000.0, amended.Amount)
	assert.Equal(t, 2, f.brepo.Count())

	_, err = f.svc.Amend(ctx, saved.Consultation.ID, f.doctor, fix)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	_, err = f.svc.Amend(ctx, second.Consultation.ID, uuid.New(), fix)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = f.svc.Amend(ctx, saved.Consultation.ID, f.doctor, encounter.Input{})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	items, err = f.svc.History(ctx, first.PatientID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, amended.ID, items[0].ID)
	assert.False(t, items[0].Superseded)
	require.NotNil(t, items[0].Bill)
	assert.Equal(t, saved.Bill.ID, items[0].Bill.ID)
	assert.True(t, items[2].Superseded)

	_, err = f.svc.History(ctx, uuid.New())
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}
