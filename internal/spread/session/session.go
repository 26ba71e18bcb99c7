package session

import (
	"context"
	"sync"
	"time"

	"spreadwatch/config"
	"spreadwatch/internal/spread/connection"
	"spreadwatch/internal/spread/livestore"
	"spreadwatch/internal/spread/metrics"
	"spreadwatch/pkg/wsconn"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const recordTimeout = 2 * time.Second

// Recorder persists accepted snapshots.
type Recorder interface {
	RecordSignal(ctx context.Context, sessionID string, snap livestore.Snapshot) error
}

// Deps are the collaborators a Session is wired with. Recorder and Metrics are optional.
type Deps struct {
	Factory  wsconn.Factory
	Recorder Recorder
	Metrics  *metrics.Collectors
	Logger   *zap.Logger
}

// Session is one dashboard session: a connection manager feeding a live store.
type Session struct {
	id        string
	url       string
	threshold float64

	manager  *connection.Manager
	store    *livestore.Store
	recorder Recorder
	metrics  *metrics.Collectors
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a session from the stream configuration. Nothing connects until Start.
func New(cfg config.StreamConfig, deps Deps) *Session {
	id := uuid.NewString()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id))

	factory := deps.Factory
	if factory == nil {
		factory = wsconn.NewFactory(cfg.HandshakeTimeout, logger)
	}

	opts := []connection.Option{
		connection.WithLogger(logger.Named("connection")),
		connection.WithDecoder(func(data []byte) (any, error) {
			return livestore.Decode(data)
		}),
	}
	if deps.Metrics != nil {
		opts = append(opts, connection.WithObserver(deps.Metrics))
	}

	manager := connection.New(connection.Config{
		PageOrigin:     cfg.PageOrigin,
		ReconnectDelay: cfg.ReconnectDelay,
	}, factory, opts...)

	store := livestore.New(cfg.HistoryCapacity,
		livestore.WithTimestampLayout(cfg.TimestampLayout),
		livestore.WithLogger(logger.Named("store")),
	)

	return &Session{
		id:        id,
		url:       cfg.URL,
		threshold: cfg.ZScoreThreshold,
		manager:   manager,
		store:     store,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Start connects and begins folding stream messages into the store.
// Calling Start on a running session does nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.recorder != nil {
		updates, unsubscribe := s.store.Subscribe()
		s.wg.Add(1)
		go s.record(ctx, updates, unsubscribe)
	}

	// the manager runs before the pump so a cancelled ctx still stops it
	s.manager.Start(s.url)
	s.wg.Add(1)
	go s.pump(ctx)
	s.logger.Info("session started", zap.String("url_override", s.url))
}

// Close stops the connection manager and waits for the session goroutines.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.manager.Stop()
	s.logger.Info("session closed")
}

func (s *Session) ID() string { return s.id }

func (s *Session) ConnectionState() connection.State { return s.manager.State() }

func (s *Session) Snapshot() livestore.Snapshot { return s.store.Snapshot() }

func (s *Session) Previous() livestore.Snapshot { return s.store.Previous() }

func (s *Session) History() livestore.History { return s.store.History() }

// pump is the store's only writer, so updates fold in delivery order. When ctx
// ends it stops the manager and keeps draining until teardown finished.
func (s *Session) pump(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.stopManager()
			return
		case ev := <-s.manager.Events():
			s.handleEvent(ev)
		}
	}
}

func (s *Session) stopManager() {
	stopped := make(chan struct{})
	go func() {
		s.manager.Stop()
		close(stopped)
	}()

	for {
		select {
		case <-stopped:
			return
		case ev := <-s.manager.Events():
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev connection.Event) {
	switch ev.Kind {
	case connection.StateChange:
		s.logger.Info("connection state", zap.Stringer("state", ev.State))

	case connection.Message:
		if ev.Malformed {
			raw, _ := ev.Payload.([]byte)
			s.logger.Warn("received malformed payload", zap.Int("bytes", len(raw)))
		}

		wasAlerting := s.store.Snapshot().Exceeds(s.threshold)
		accepted := s.store.OnUpdate(ev.Payload)
		snap := s.store.Snapshot()
		if s.metrics != nil {
			s.metrics.UpdateApplied(accepted, snap)
		}
		if accepted && !wasAlerting && snap.Exceeds(s.threshold) {
			s.logger.Warn("z-score crossed alert threshold",
				zap.Float64("z_score", *snap.ZScore),
				zap.Float64("threshold", s.threshold),
			)
		}

	case connection.Terminal:
		s.logger.Info("connection terminated", zap.String("reason", ev.Reason))
	}
}

func (s *Session) record(ctx context.Context, updates <-chan struct{}, unsubscribe func()) {
	defer s.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			snap := s.store.Snapshot()
			rctx, cancel := context.WithTimeout(ctx, recordTimeout)
			err := s.recorder.RecordSignal(rctx, s.id, snap)
			cancel()
			if err != nil {
				s.logger.Warn("failed to record signal", zap.Uint64("seq", snap.Seq), zap.Error(err))
			}
		}
	}
}
