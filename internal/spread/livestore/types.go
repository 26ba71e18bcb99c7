package livestore

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Sentiment is the long/short/neutral split published with an update.
type Sentiment struct {
	Long    float64 `json:"long"`
	Short   float64 `json:"short"`
	Neutral float64 `json:"neutral"`
}

// MetricUpdate is one analytics message from the stream. Absent fields stay nil.
type MetricUpdate struct {
	Type         string     `json:"type,omitempty"`          // e.g. "analytics_update"
	ZScore       *float64   `json:"z_score,omitempty"`       // spread distance from its mean, in std devs
	HedgeRatio   *float64   `json:"hedge_ratio,omitempty"`   // OLS slope between the two legs
	LatestSpread *float64   `json:"latest_spread,omitempty"` // y - (alpha + beta*x)
	SymbolPair   *string    `json:"symbol_pair,omitempty"`   // e.g. "ETHUSDT / BTCUSDT"
	Sentiment    *Sentiment `json:"pie_summary,omitempty"`
	Timestamp    *string    `json:"timestamp,omitempty"` // producer time, ISO-8601
}

// Decode parses a stream payload into a MetricUpdate. Payloads that are not a
// JSON object, or whose fields have the wrong type, are rejected.
func Decode(data []byte) (*MetricUpdate, error) {
	var u MetricUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode metric update: %w", err)
	}
	return &u, nil
}

// Snapshot holds the values currently displayed. A nil field means no data yet.
type Snapshot struct {
	Type         string     `json:"type,omitempty"`
	ZScore       *float64   `json:"z_score"`
	HedgeRatio   *float64   `json:"hedge_ratio"`
	LatestSpread *float64   `json:"latest_spread"`
	SymbolPair   *string    `json:"symbol_pair"`
	Sentiment    *Sentiment `json:"pie_summary"`
	Timestamp    *string    `json:"timestamp"`

	Seq        uint64    `json:"seq"`         // accepted updates so far
	ReceivedAt time.Time `json:"received_at"` // local receipt time of the last accepted update
}

// clone copies the snapshot without sharing any pointed-to value.
func (s Snapshot) clone() Snapshot {
	out := s
	out.ZScore = cloneFloat(s.ZScore)
	out.HedgeRatio = cloneFloat(s.HedgeRatio)
	out.LatestSpread = cloneFloat(s.LatestSpread)
	if s.SymbolPair != nil {
		v := *s.SymbolPair
		out.SymbolPair = &v
	}
	if s.Sentiment != nil {
		v := *s.Sentiment
		out.Sentiment = &v
	}
	if s.Timestamp != nil {
		v := *s.Timestamp
		out.Timestamp = &v
	}
	return out
}

// HasData reports whether any update has been accepted.
func (s Snapshot) HasData() bool {
	return s.Seq > 0
}

// Exceeds reports whether |z| reached threshold.
func (s Snapshot) Exceeds(threshold float64) bool {
	return s.ZScore != nil && math.Abs(*s.ZScore) >= threshold
}

// History is a copy of the rolling series. All three slices share one length and
// index i in each refers to the same sample; index 0 is the oldest.
type History struct {
	HedgeRatios []*float64 `json:"hedge_ratios"`
	Velocities  []float64  `json:"velocities"`
	Timestamps  []string   `json:"timestamps"`
}

// RatioPoint is a plottable hedge ratio sample.
type RatioPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// RatioPoints returns the hedge ratio samples that carry a value, oldest first.
func (h History) RatioPoints() []RatioPoint {
	out := make([]RatioPoint, 0, len(h.HedgeRatios))
	for i, r := range h.HedgeRatios {
		if r == nil {
			continue
		}
		out = append(out, RatioPoint{Timestamp: h.Timestamps[i], Value: *r})
	}
	return out
}

// Direction is the sign of a change between two readings.
type Direction int

const (
	Flat Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "flat"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Compare returns the direction from prev to cur. Missing readings compare Flat.
func Compare(prev, cur *float64) Direction {
	if prev == nil || cur == nil {
		return Flat
	}
	switch {
	case *cur > *prev:
		return Up
	case *cur < *prev:
		return Down
	default:
		return Flat
	}
}
