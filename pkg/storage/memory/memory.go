package memory

import (
	"context"
	"sync"
	"time"

	"spreadwatch/internal/spread/livestore"
	"spreadwatch/pkg/storage/postgres"
)

// Signal is one recorded snapshot.
type Signal struct {
	SessionID string
	Snapshot  livestore.Snapshot
}

// SignalStore keeps recorded signals in memory. Used when Postgres is disabled.
type SignalStore struct {
	mu      sync.Mutex
	signals []Signal
}

func NewSignalStore() *SignalStore {
	return &SignalStore{
		signals: make([]Signal, 0),
	}
}

func (m *SignalStore) RecordSignal(_ context.Context, sessionID string, snap livestore.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, Signal{SessionID: sessionID, Snapshot: snap})
	return nil
}

func (m *SignalStore) Signals() []Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to avoid race
	out := make([]Signal, len(m.signals))
	copy(out, m.signals)
	return out
}

// DeleteSignalsBefore drops signals received before the cutoff.
func (m *SignalStore) DeleteSignalsBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.signals[:0]
	var removed int64
	for _, s := range m.signals {
		if s.Snapshot.ReceivedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.signals = kept
	return removed, nil
}

// ListSignals returns up to limit signals received at or after since, oldest
// first, in the same shape the Postgres recorder returns.
func (m *SignalStore) ListSignals(_ context.Context, since time.Time, limit int) ([]postgres.SignalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]postgres.SignalRecord, 0)
	for i, s := range m.signals {
		if limit > 0 && len(records) >= limit {
			break
		}
		if s.Snapshot.ReceivedAt.Before(since) {
			continue
		}
		rec, err := postgres.ToSignalRecord(s.SessionID, s.Snapshot)
		if err != nil {
			// snapshots without a z-score are never listed
			continue
		}
		rec.ID = uint(i + 1)
		records = append(records, *rec)
	}
	return records, nil
}
