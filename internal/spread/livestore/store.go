package livestore

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultTimestampLayout = "15:04:05"

// Store folds stream updates into the current snapshot, the previous snapshot
// and the rolling history. OnUpdate is expected to be called from one goroutine
// in delivery order; readers may call the getters concurrently.
type Store struct {
	mu       sync.RWMutex
	current  Snapshot
	previous Snapshot
	history  *rolling

	layout string
	now    func() time.Time
	logger *zap.Logger

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// Option customizes a Store.
type Option func(*Store)

// WithTimestampLayout sets the time layout used for history timestamps.
func WithTimestampLayout(layout string) Option {
	return func(s *Store) {
		if layout != "" {
			s.layout = layout
		}
	}
}

// WithClock sets the receipt time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a store whose history holds capacity samples (DefaultCapacity if <= 0).
func New(capacity int, opts ...Option) *Store {
	s := &Store{
		history: newRolling(capacity),
		layout:  DefaultTimestampLayout,
		now:     time.Now,
		logger:  zap.NewNop(),
		subs:    make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnUpdate applies one delivered payload. It accepts *MetricUpdate, MetricUpdate,
// or raw bytes. Payloads without a z-score, including undecodable ones, leave
// all state untouched. It reports whether the update was applied.
func (s *Store) OnUpdate(payload any) bool {
	u, ok := asUpdate(payload)
	if !ok {
		s.logger.Debug("ignoring undecodable update")
		return false
	}
	if u.ZScore == nil {
		s.logger.Debug("ignoring update without z_score")
		return false
	}

	now := s.now()

	s.mu.Lock()
	prev := s.current
	next := merge(prev, u, now)
	s.previous = prev
	s.current = next
	s.history.push(cloneFloat(u.HedgeRatio), velocity(prev.LatestSpread, next.LatestSpread), now.Format(s.layout))
	s.mu.Unlock()

	s.notify()
	return true
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Previous returns a copy of the values that were current before the last
// accepted update.
func (s *Store) Previous() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous.clone()
}

// History returns a copy of the rolling series.
func (s *Store) History() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.snapshot()
}

// Capacity returns the history length.
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history.ratios)
}

// Subscribe returns a channel signalled after every accepted update. Signals
// coalesce when the subscriber lags. The returned func unsubscribes and closes
// the channel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func asUpdate(payload any) (*MetricUpdate, bool) {
	switch p := payload.(type) {
	case *MetricUpdate:
		return p, p != nil
	case MetricUpdate:
		return &p, true
	case []byte:
		u, err := Decode(p)
		return u, err == nil
	case json.RawMessage:
		u, err := Decode(p)
		return u, err == nil
	case string:
		u, err := Decode([]byte(p))
		return u, err == nil
	default:
		return nil, false
	}
}

// merge builds the next snapshot, holding the last known value of any field the
// update leaves out. Held values are copied so current and previous never alias.
func merge(prev Snapshot, u *MetricUpdate, now time.Time) Snapshot {
	next := prev.clone()
	next.Seq = prev.Seq + 1
	next.ReceivedAt = now

	if u.Type != "" {
		next.Type = u.Type
	}
	if u.ZScore != nil {
		next.ZScore = cloneFloat(u.ZScore)
	}
	if u.HedgeRatio != nil {
		next.HedgeRatio = cloneFloat(u.HedgeRatio)
	}
	if u.LatestSpread != nil {
		next.LatestSpread = cloneFloat(u.LatestSpread)
	}
	if u.SymbolPair != nil {
		v := *u.SymbolPair
		next.SymbolPair = &v
	}
	if u.Sentiment != nil {
		v := *u.Sentiment
		next.Sentiment = &v
	}
	if u.Timestamp != nil {
		v := *u.Timestamp
		next.Timestamp = &v
	}
	return next
}
