package app

import (
	"context"
	"sync/atomic"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

// journalSink queues outbound notifications and writes them to the journal
// from a single goroutine. Send never blocks; a full queue drops the snapshot.
type journalSink struct {
	logger  ports.Logger
	journal ports.SnapshotJournal
	ch      chan domain.Snapshot
	dropped atomic.Int64
}

func newJournalSink(logger ports.Logger, journal ports.SnapshotJournal, size int) *journalSink {
	return &journalSink{logger: logger, journal: journal, ch: make(chan domain.Snapshot, size)}
}

// Send queues snap.
func (s *journalSink) Send(snap domain.Snapshot) {
	select {
	case s.ch <- snap:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn(context.Background(), "Snapshot queue full, dropping notification", map[string]interface{}{
			"entity": snap.Name, "id": snap.ID, "dropped": n,
		})
	}
}

// Dropped returns the number of notifications lost to a full queue.
func (s *journalSink) Dropped() int64 { return s.dropped.Load() }

// run drains the queue until ctx ends, then writes whatever is still queued.
func (s *journalSink) run(ctx context.Context) {
	for {
		select {
		case snap := <-s.ch:
			s.record(ctx, snap)
		case <-ctx.Done():
			for {
				select {
				case snap := <-s.ch:
					s.record(context.Background(), snap)
				default:
					return
				}
			}
		}
	}
}

func (s *journalSink) record(ctx context.Context, snap domain.Snapshot) {
	if s.journal == nil {
		s.logger.Debug(ctx, "Notification", map[string]interface{}{"entity": snap.Name, "id": snap.ID, "seq": snap.Type})
		return
	}
	if err := s.journal.Record(ctx, snap); err != nil {
		s.logger.Error(ctx, err, "Failed to journal notification", map[string]interface{}{"entity": snap.Name, "id": snap.ID})
	}
}
