package queuetest

import "context"

// Snapshotter captures in-memory state and returns a function restoring it.
type Snapshotter interface {
	Snapshot() func()
}

// RollbackTx is a db.TxRunner for in-memory repositories. When fn fails every
// registered repository is restored to its state before the call.
type RollbackTx struct {
	Repos []Snapshotter
}

func (t RollbackTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	restores := make([]func(), 0, len(t.Repos))
	for _, r := range t.Repos {
		restores = append(restores, r.Snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}
