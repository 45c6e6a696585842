package audit

import (
	"context"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
)

// StoreSink writes events into the local history table
type StoreSink struct {
	store *embedding.Store
}

// NewStoreSink wraps a store. The store is owned by the caller and is not closed here.
func NewStoreSink(store *embedding.Store) *StoreSink {
	return &StoreSink{store: store}
}

// Record implements Sink
func (s *StoreSink) Record(ctx context.Context, ev access.Event) error {
	return s.store.RecordEvent(ev)
}

// Close implements Sink
func (s *StoreSink) Close() error {
	return nil
}
