package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spreadwatch/internal/spread/connection"
	"spreadwatch/internal/spread/livestore"
	"spreadwatch/pkg/storage/postgres"
	"spreadwatch/pkg/upstream"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Source is the read side of a running session.
type Source interface {
	ID() string
	ConnectionState() connection.State
	Snapshot() livestore.Snapshot
	Previous() livestore.Snapshot
	History() livestore.History
}

// HealthChecker reports the analytics server behind the stream.
type HealthChecker interface {
	Health(ctx context.Context) (upstream.Health, error)
}

// DBChecker reports whether the signal database answers.
type DBChecker interface {
	IsHealthy(ctx context.Context) bool
}

// SignalLister reads recorded signals.
type SignalLister interface {
	ListSignals(ctx context.Context, since time.Time, limit int) ([]postgres.SignalRecord, error)
}

type Option func(*Server)

// WithUpstream adds the analytics server's health to /healthz.
func WithUpstream(h HealthChecker) Option {
	return func(s *Server) { s.upstream = h }
}

// WithDatabase adds the signal database's health to /healthz.
func WithDatabase(db DBChecker) Option {
	return func(s *Server) { s.db = db }
}

// WithSignals routes GET /api/signals.
func WithSignals(l SignalLister) Option {
	return func(s *Server) { s.signals = l }
}

type SnapshotResponse struct {
	SessionID string              `json:"session_id"`
	State     connection.State    `json:"state"`
	Current   livestore.Snapshot  `json:"current"`
	Previous  livestore.Snapshot  `json:"previous"`
	Direction livestore.Direction `json:"direction"` // z-score movement since the previous update
	Alert     bool                `json:"alert"`
}

type HistoryResponse struct {
	livestore.History
	RatioPoints []livestore.RatioPoint `json:"ratio_points"`
}

type SignalsResponse struct {
	Count   int                     `json:"count"`
	Signals []postgres.SignalRecord `json:"signals"`
}

type signalsQuery struct {
	Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"` // RFC 3339, empty means all
	Limit int       `form:"limit,default=100" binding:"min=1,max=1000"`
}

type Server struct {
	source    Source
	gatherer  prometheus.Gatherer
	upstream  HealthChecker
	db        DBChecker
	signals   SignalLister
	threshold float64
	logger    *zap.Logger
	engine    *gin.Engine
	http      *http.Server
}

// New builds the router. gatherer may be nil to leave /metrics unrouted.
func New(source Source, gatherer prometheus.Gatherer, threshold float64, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		source:    source,
		gatherer:  gatherer,
		threshold: threshold,
		logger:    logger,
		engine:    r,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)
	s.engine.GET("/api/snapshot", s.getSnapshot)
	s.engine.GET("/api/history", s.getHistory)
	if s.signals != nil {
		s.engine.GET("/api/signals", s.getSignals)
	}
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) Router() http.Handler {
	return s.engine
}

// Start serves on addr in the background.
func (s *Server) Start(addr string) {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) getHealth(c *gin.Context) {
	resp := gin.H{
		"status":     "ok",
		"state":      s.source.ConnectionState(),
		"session_id": s.source.ID(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		resp["db"] = "unavailable"
		if s.db.IsHealthy(ctx) {
			resp["db"] = "connected"
		}
		cancel()
	}

	if s.upstream != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		h, err := s.upstream.Health(ctx)
		cancel()
		if err != nil {
			resp["upstream_error"] = err.Error()
		} else {
			resp["upstream"] = h
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSnapshot(c *gin.Context) {
	cur, prev := s.source.Snapshot(), s.source.Previous()
	c.JSON(http.StatusOK, SnapshotResponse{
		SessionID: s.source.ID(),
		State:     s.source.ConnectionState(),
		Current:   cur,
		Previous:  prev,
		Direction: livestore.Compare(prev.ZScore, cur.ZScore),
		Alert:     cur.Exceeds(s.threshold),
	})
}

func (s *Server) getHistory(c *gin.Context) {
	h := s.source.History()
	c.JSON(http.StatusOK, HistoryResponse{
		History:     h,
		RatioPoints: h.RatioPoints(),
	})
}

func (s *Server) getSignals(c *gin.Context) {
	var q signalsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.signals.ListSignals(c.Request.Context(), q.Since, q.Limit)
	if err != nil {
		s.logger.Warn("failed to list signals", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
		return
	}
	c.JSON(http.StatusOK, SignalsResponse{Count: len(records), Signals: records})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
