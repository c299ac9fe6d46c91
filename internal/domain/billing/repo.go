package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, b *Bill) error
	Get(ctx context.Context, id uuid.UUID) (*Bill, error)
	// MarkPaid flips a pending bill to paid. A bill that is no longer
	// pending yields a Conflict.
	MarkPaid(ctx context.Context, id uuid.UUID, method PaymentMethod, at time.Time) (*Bill, error)
	ByConsultations(ctx context.Context, consultationIDs []uuid.UUID) (map[uuid.UUID]*Bill, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Bill, int, error)
}
