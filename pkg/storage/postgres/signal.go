package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spreadwatch/internal/spread/livestore"

	"gorm.io/gorm/clause"
)

// ErrNoZScore is returned when converting a snapshot that carries no z-score.
var ErrNoZScore = errors.New("snapshot has no z_score")

func (p *PostgresClient) InsertSignal(ctx context.Context, record *SignalRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_id"},
			{Name: "seq"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf(
			"duplicate signal skipped: session=%s seq=%d",
			record.SessionID,
			record.Seq,
		)
	}

	return nil
}

// RecordSignal converts and inserts a snapshot.
func (p *PostgresClient) RecordSignal(ctx context.Context, sessionID string, snap livestore.Snapshot) error {
	record, err := ToSignalRecord(sessionID, snap)
	if err != nil {
		return err
	}
	return p.InsertSignal(ctx, record)
}

// ListSignals returns up to limit records received at or after since, oldest first.
func (p *PostgresClient) ListSignals(ctx context.Context, since time.Time, limit int) ([]SignalRecord, error) {
	var records []SignalRecord
	err := p.DB.WithContext(ctx).
		Where("received_at >= ?", since).
		Order("received_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteSignalsBefore removes records received before the cutoff.
func (p *PostgresClient) DeleteSignalsBefore(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("received_at < ?", before).
		Delete(&SignalRecord{})
	return tx.RowsAffected, tx.Error
}

// ToSignalRecord converts a snapshot into a SignalRecord for DB insertion.
func ToSignalRecord(sessionID string, snap livestore.Snapshot) (*SignalRecord, error) {
	if snap.ZScore == nil {
		return nil, ErrNoZScore
	}

	record := &SignalRecord{
		SessionID:    sessionID,
		Seq:          snap.Seq,
		Type:         snap.Type,
		ZScore:       *snap.ZScore,
		HedgeRatio:   snap.HedgeRatio,
		LatestSpread: snap.LatestSpread,
		ReceivedAt:   snap.ReceivedAt,
	}
	if snap.SymbolPair != nil {
		record.SymbolPair = *snap.SymbolPair
	}
	if s := snap.Sentiment; s != nil {
		record.SentimentLong = &s.Long
		record.SentimentShort = &s.Short
		record.SentimentNeutral = &s.Neutral
	}
	if snap.Timestamp != nil {
		if t, err := parseProducerTime(*snap.Timestamp); err == nil {
			record.ProducedAt = &t
		}
	}
	return record, nil
}

// parseProducerTime accepts RFC 3339 and the zone-less ISO form the analytics
// service emits (e.g. 2024-05-01T12:00:00.123456).
func parseProducerTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999999", s)
}
