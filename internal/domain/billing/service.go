package billing

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperror"
	"github.com/clinic/clinic/internal/platform/events"
)

type Service struct {
	repo      Repository
	pub       events.Publisher
	opTimeout time.Duration
	now       func() time.Time
}

func NewService(repo Repository, pub events.Publisher, opTimeout time.Duration) *Service {
	return &Service{
		repo:      repo,
		pub:       pub,
		opTimeout: opTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ParseMethod validates an optional payment method. An empty string means
// the bill stays pending.
func ParseMethod(raw string) (*PaymentMethod, error) {
	if raw == "" {
		return nil, nil
	}
	m := PaymentMethod(raw)
	if !m.Valid() {
		return nil, apperror.Validation("billing.method", "payment method must be cash, mpesa or card")
	}
	return &m, nil
}

// IssueWithin raises the bill for a consultation inside the caller's
// transaction. With a payment method the bill is created already paid.
func (s *Service) IssueWithin(ctx context.Context, consultationID, patientID uuid.UUID, amount float64, method *PaymentMethod) (*Bill, error) {
	const op = "billing.issue"
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, apperror.Validation(op, "amount must be zero or more")
	}
	b := &Bill{
		ConsultationID: consultationID,
		PatientID:      patientID,
		Amount:         math.Round(amount*100) / 100,
		Status:         StatusPending,
	}
	if method != nil {
		if !method.Valid() {
			return nil, apperror.Validation(op, "payment method must be cash, mpesa or card")
		}
		at := s.now()
		b.Status = StatusPaid
		b.PaymentMethod = method
		b.PaidAt = &at
	}
	if err := s.repo.Insert(ctx, b); err != nil {
		return nil, apperror.Wrap(op, err)
	}
	return b, nil
}

// MarkPaid settles a pending bill. Paying twice is a state error.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, method PaymentMethod) (*Bill, error) {
	const op = "billing.mark_paid"
	if !method.Valid() {
		return nil, apperror.Validation(op, "payment method must be cash, mpesa or card")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	if current.Status == StatusPaid {
		return nil, apperror.State(op, "bill is already paid")
	}
	b, err := s.repo.MarkPaid(ctx, id, method, s.now())
	if err != nil {
		return nil, apperror.Wrap(op, err)
	}
	s.Announce(ctx, b)
	return b, nil
}

// Announce publishes billPaid for a committed paid bill.
func (s *Service) Announce(ctx context.Context, b *Bill) {
	if b.Status != StatusPaid {
		return
	}
	data := map[string]interface{}{
		"billId":         b.ID,
		"consultationId": b.ConsultationID,
		"patientId":      b.PatientID,
		"amount":         b.Amount,
	}
	if b.PaymentMethod != nil {
		data["paymentMethod"] = *b.PaymentMethod
	}
	s.pub.Publish(context.WithoutCancel(ctx),
		events.New(events.BillPaid, events.TopicBilling, b.ID, s.now(), data))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := s.repo.Get(ctx, id)
	return b, apperror.Wrap("billing.get", err)
}

// ForConsultations returns the bills of the given consultations keyed by
// consultation id.
func (s *Service) ForConsultations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Bill, error) {
	out, err := s.repo.ByConsultations(ctx, ids)
	return out, apperror.Wrap("billing.by_consultations", err)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperror.Validation("billing.list", "unknown status %q", f.Status)
	}
	out, total, err := s.repo.List(ctx, f, limit, offset)
	return out, total, apperror.Wrap("billing.list", err)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Bill, int, error) {
	return s.List(ctx, Filter{PatientID: &patientID}, limit, offset)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
