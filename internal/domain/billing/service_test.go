package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/billing/billingtest"
	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/events"
)

func newService() (*billing.Service, *billingtest.MemRepo, *events.Recorder) {
	repo := billingtest.NewMemRepo()
	rec := &events.Recorder{}
	return billing.NewService(repo, rec, time.Second), repo, rec
}

func TestIssueWithin_Pending(t *testing.T) {
	svc, _, rec := newService()
	b, err := svc.IssueWithin(context.Background(), uuid.New(), uuid.New(), 1500.004, nil)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, b.Status)
	assert.Equal(t, 1500.0, b.Amount)
	assert.Nil(t, b.PaidAt)
	assert.Empty(t, rec.Events())
}

func TestIssueWithin_PaidAtSave(t *testing.T) {
	svc, _, _ := newService()
	m := billing.MethodMpesa
	b, err := svc.IssueWithin(context.Background(), uuid.New(), uuid.New(), 800, &m)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, b.Status)
	require.NotNil(t, b.PaidAt)
	assert.Equal(t, billing.MethodMpesa, *b.PaymentMethod)
}

func TestIssueWithin_Validation(t *testing.T) {
	svc, repo, _ := newService()
	_, err := svc.IssueWithin(context.Background(), uuid.New(), uuid.New(), -1, nil)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	bad := billing.PaymentMethod("cheque")
	_, err = svc.IssueWithin(context.Background(), uuid.New(), uuid.New(), 10, &bad)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	assert.Zero(t, repo.Count())
}

func TestIssueWithin_OneBillPerConsultation(t *testing.T) {
	svc, _, _ := newService()
	consultation := uuid.New()
	_, err := svc.IssueWithin(context.Background(), consultation, uuid.New(), 10, nil)
	require.NoError(t, err)
	_, err = svc.IssueWithin(context.Background(), consultation, uuid.New(), 10, nil)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestMarkPaid_ExactlyOnce(t *testing.T) {
	svc, _, rec := newService()
	ctx := context.Background()
	b, err := svc.IssueWithin(ctx, uuid.New(), uuid.New(), 1200, nil)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, b.ID, billing.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	evs := rec.OfType(events.BillPaid)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TopicBilling, evs[0].Topic)
	assert.Equal(t, b.ID, evs[0].SubjectID)

	_, err = svc.MarkPaid(ctx, b.ID, billing.MethodCard)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindState))
	assert.Equal(t, "bill is already paid", apperror.Message(err))
	assert.Len(t, rec.OfType(events.BillPaid), 1)
}

func TestMarkPaid_Errors(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	_, err := svc.MarkPaid(ctx, uuid.New(), billing.MethodCash)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = svc.MarkPaid(ctx, uuid.New(), "barter")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestParseMethod(t *testing.T) {
	m, err := billing.ParseMethod("")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = billing.ParseMethod("card")
	require.NoError(t, err)
	assert.Equal(t, billing.MethodCard, *m)

	_, err = billing.ParseMethod("gold")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestListByPatient(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	patient := uuid.New()
	first, err := svc.IssueWithin(ctx, uuid.New(), patient, 10, nil)
	require.NoError(t, err)
	second, err := svc.IssueWithin(ctx, uuid.New(), patient, 20, nil)
	require.NoError(t, err)
	_, err = svc.IssueWithin(ctx, uuid.New(), uuid.New(), 30, nil)
	require.NoError(t, err)

	out, total, err := svc.ListByPatient(ctx, patient, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, out, 2)
	assert.Equal(t, second.ID, out[0].ID)
	assert.Equal(t, first.ID, out[1].ID)

	_, _, err = svc.List(ctx, billing.Filter{Status: "void"}, 20, 0)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}
