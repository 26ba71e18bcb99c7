package postgres_test

import (
	"context"
	"testing"
	"time"

	"spreadwatch/internal/spread/livestore"
	"spreadwatch/pkg/storage/postgres"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func sampleSnapshot(seq uint64, received time.Time) livestore.Snapshot {
	pair := "ETHUSDT / BTCUSDT"
	stamp := "2024-05-01T12:00:00.123456"
	return livestore.Snapshot{
		Type:         "analytics_update",
		ZScore:       f64(2.1),
		HedgeRatio:   f64(16.5),
		LatestSpread: f64(-42.25),
		SymbolPair:   &pair,
		Sentiment:    &livestore.Sentiment{Long: 0.6, Short: 0.3, Neutral: 0.1},
		Timestamp:    &stamp,
		Seq:          seq,
		ReceivedAt:   received,
	}
}

// go test -v --run TestToSignalRecord
func TestToSignalRecord(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC)
	rec, err := postgres.ToSignalRecord("session-1", sampleSnapshot(7, received))
	require.NoError(t, err)

	assert.Equal(t, "session-1", rec.SessionID)
	assert.Equal(t, uint64(7), rec.Seq)
	assert.Equal(t, 2.1, rec.ZScore)
	assert.Equal(t, 16.5, *rec.HedgeRatio)
	assert.Equal(t, -42.25, *rec.LatestSpread)
	assert.Equal(t, "ETHUSDT / BTCUSDT", rec.SymbolPair)
	assert.Equal(t, 0.6, *rec.SentimentLong)
	assert.Equal(t, received, rec.ReceivedAt)
	require.NotNil(t, rec.ProducedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC), *rec.ProducedAt)

	_, err = postgres.ToSignalRecord("session-1", livestore.Snapshot{})
	assert.ErrorIs(t, err, postgres.ErrNoZScore)
}

// go test -v --run TestSignalCRUD
func TestSignalCRUD(t *testing.T) {
	cfg := testConfig(t)

	client, err := postgres.InitializeAndMigrateSignalRecord(cfg, "dev", true)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	session := uuid.NewString()
	old := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	recent := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, client.RecordSignal(ctx, session, sampleSnapshot(1, old)))
	require.NoError(t, client.RecordSignal(ctx, session, sampleSnapshot(2, recent)))
	assert.Error(t, client.RecordSignal(ctx, session, sampleSnapshot(2, recent)), "duplicate seq is skipped")

	got, err := client.ListSignals(ctx, recent.Add(-time.Minute), 10)
	require.NoError(t, err)
	var mine []postgres.SignalRecord
	for _, r := range got {
		if r.SessionID == session {
			mine = append(mine, r)
		}
	}
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(2), mine[0].Seq)

	n, err := client.DeleteSignalsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
