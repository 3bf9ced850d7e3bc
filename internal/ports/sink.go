package ports

import (
	"context"

	"eveBot/internal/domain"
)

// SnapshotSink receives outbound mutation notifications. Send must not block.
type SnapshotSink interface {
	Send(snap domain.Snapshot)
}

// SnapshotJournal stores notifications for later inspection. It is never
// read back to rebuild state.
type SnapshotJournal interface {
	Record(ctx context.Context, snap domain.Snapshot) error
	FindByEntity(ctx context.Context, name string, limit int) ([]JournalEntry, error)
	Close() error
}

// JournalEntry is one stored notification.
type JournalEntry struct {
	ID         int64
	Name       string
	EntityID   string
	Sequence   uint64
	Payload    []byte
	RecordedAt int64
}
