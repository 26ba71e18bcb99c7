package postgres

import "time"

// SignalRecord is one accepted live snapshot persisted for later review.
type SignalRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// unique index
	SessionID string `gorm:"type:varchar(36);not null;index:idx_signal_session_seq,unique" json:"session_id"`
	Seq       uint64 `gorm:"not null;index:idx_signal_session_seq,unique" json:"seq"`

	SymbolPair string `gorm:"type:text;index:idx_signal_symbol_pair" json:"symbol_pair"`
	Type       string `gorm:"type:varchar(32)" json:"type,omitempty"`

	ZScore       float64  `gorm:"type:numeric;not null" json:"z_score"`
	HedgeRatio   *float64 `gorm:"type:numeric" json:"hedge_ratio"`
	LatestSpread *float64 `gorm:"type:numeric" json:"latest_spread"`

	SentimentLong    *float64 `gorm:"type:numeric" json:"sentiment_long,omitempty"`
	SentimentShort   *float64 `gorm:"type:numeric" json:"sentiment_short,omitempty"`
	SentimentNeutral *float64 `gorm:"type:numeric" json:"sentiment_neutral,omitempty"`

	// ProducedAt is the upstream timestamp when it parsed.
	ProducedAt *time.Time `json:"produced_at,omitempty"`
	ReceivedAt time.Time  `gorm:"not null;index:idx_signal_received_at" json:"received_at"`

	RecordedAt time.Time `gorm:"autoCreateTime" json:"recorded_at"`
}

// TableName overrides the default table name for GORM.
func (SignalRecord) TableName() string {
	return "signal_record"
}
