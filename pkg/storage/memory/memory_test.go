package memory

import (
	"context"
	"testing"
	"time"

	"spreadwatch/internal/spread/livestore"
)

// go test -v --run TestRecordAndRetrieveSignal
func TestRecordAndRetrieveSignal(t *testing.T) {
	store := NewSignalStore()
	z := 2.4

	if err := store.RecordSignal(context.Background(), "s1", livestore.Snapshot{ZScore: &z, Seq: 1}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	signals := store.Signals()
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].SessionID != "s1" || *signals[0].Snapshot.ZScore != 2.4 {
		t.Errorf("unexpected signal: %+v", signals[0])
	}
}

// go test -v --run TestDeleteSignalsBefore
func TestDeleteSignalsBefore(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()
	now := time.Now()

	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{Seq: 1, ReceivedAt: now.Add(-3 * time.Hour)})
	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{Seq: 2, ReceivedAt: now.Add(-2 * time.Hour)})
	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{Seq: 3, ReceivedAt: now})

	n, err := store.DeleteSignalsBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	signals := store.Signals()
	if len(signals) != 1 || signals[0].Snapshot.Seq != 3 {
		t.Errorf("unexpected remaining signals: %+v", signals)
	}
}

// go test -v --run TestListSignals
func TestListSignals(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()
	now := time.Now()
	z := 1.5

	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{ZScore: &z, Seq: 1, ReceivedAt: now.Add(-2 * time.Hour)})
	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{Seq: 2, ReceivedAt: now})
	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{ZScore: &z, Seq: 3, ReceivedAt: now})
	_ = store.RecordSignal(ctx, "s1", livestore.Snapshot{ZScore: &z, Seq: 4, ReceivedAt: now})

	records, err := store.ListSignals(ctx, now.Add(-time.Hour), 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 || records[0].Seq != 3 || records[0].SessionID != "s1" {
		t.Errorf("unexpected records: %+v", records)
	}

	records, _ = store.ListSignals(ctx, time.Time{}, 0)
	if len(records) != 3 {
		t.Errorf("expected 3 records with a z-score, got %d", len(records))
	}
}
