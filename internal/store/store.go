package store

import (
	"context"

	"github.com/quickcal/quickcal-server-go/internal/model"
)

// Store persists the full registry snapshot. Every Save writes the complete
// snapshot of all conversations; Load returns an empty snapshot rather than an
// error when no durable record exists yet or the record is unreadable, so a
// corrupt record degrades to empty state instead of failing boot.
type Store interface {
	Save(ctx context.Context, snapshot model.Snapshot) error
	Load(ctx context.Context) (model.Snapshot, error)
}
