// Package session runs the decode and classify pipeline for one subscription
// and keeps its bounded history together with the calibration baseline.
package session

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/frame"
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/posture"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Snapshot is a consistent copy of the session state for rendering
type Snapshot struct {
	SessionID string                  `json:"sessionId"`
	Baseline  models.Baseline         `json:"baseline"`
	Samples   []models.SensorSample   `json:"samples"`
	Verdicts  []models.PostureVerdict `json:"verdicts"`
	Latest    *models.Reading         `json:"latest,omitempty"`
}

// Session implements models.FrameSink
type Session struct {
	mu              sync.RWMutex
	store           *Store
	baseline        models.Baseline
	defaultBaseline models.Baseline
	cfg             posture.Config
	id              string
	seq             uint64

	capacity  int
	logger    *slog.Logger
	listeners models.SessionListeners
	now       func() time.Time
}

type Option func(*Session)

// WithLogger sets the logger; decode failures are logged at warn level
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithListener registers a listener for readings, decode errors and calibrations
func WithListener(l models.SessionListener) Option {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// WithConfig replaces the classifier window and thresholds
func WithConfig(cfg posture.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithCapacity bounds the number of readings kept
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// WithBaseline sets the baseline used before calibration and restored by Reset
func WithBaseline(b models.Baseline) Option {
	return func(s *Session) { s.defaultBaseline = b }
}

func withClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(opts ...Option) (*Session, error) {
	s := &Session{
		cfg:             posture.DefaultConfig(),
		defaultBaseline: models.DefaultBaseline(),
		capacity:        util.DefaultHistoryCapacity,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "classifier config issue")
	}
	if s.capacity < s.cfg.Window {
		return nil, errors.Errorf("history capacity %d is smaller than window %d", s.capacity, s.cfg.Window)
	}
	store, err := NewStore(s.capacity)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.baseline = s.defaultBaseline
	return s, nil
}

// Ingest decodes frame, classifies it against the newest window and appends
// the reading. Frames that fail to decode leave the history untouched.
func (s *Session) Ingest(payload []byte) error {
	sample, err := frame.Decode(payload)
	if err != nil {
		s.logger.Warn("dropping frame", slog.String("error", err.Error()))
		s.listeners.OnDecodeError(err)
		return err
	}

	s.mu.Lock()
	window := append(s.store.LastSamples(s.cfg.Window-1), sample)
	s.seq++
	reading := models.Reading{
		Seq:        s.seq,
		Sample:     sample,
		Verdict:    posture.Classify(window, s.baseline, s.cfg),
		ReceivedAt: s.now(),
	}
	s.store.Append(reading)
	s.mu.Unlock()

	s.logger.Debug("reading", slog.Uint64("seq", reading.Seq), slog.String("verdict", reading.Verdict.String()))
	s.listeners.OnReading(reading)
	return nil
}

// Clear drops the history, keeps the baseline and starts a new session id
func (s *Session) Clear() {
	s.mu.Lock()
	s.store.Clear()
	s.seq = 0
	s.id = uuid.New().String()
	s.mu.Unlock()
	s.logger.Info("session started", slog.String("session", s.ID()))
}

// Reset drops the history and restores the default baseline
func (s *Session) Reset() {
	s.mu.Lock()
	s.store.Clear()
	s.seq = 0
	s.id = ""
	s.baseline = s.defaultBaseline
	s.mu.Unlock()
	s.logger.Info("session reset")
}

// Calibrate replaces the baseline with the mean of the newest window.
// The baseline is left unchanged when the window is not full yet.
func (s *Session) Calibrate() (models.Baseline, error) {
	s.mu.Lock()
	b, err := posture.Calibrate(s.store.LastSamples(s.cfg.Window), s.cfg)
	if err != nil {
		s.mu.Unlock()
		return models.Baseline{}, err
	}
	s.baseline = b
	s.mu.Unlock()

	s.logger.Info("calibrated", slog.Int("left", b.Left), slog.Int("middle", b.Middle), slog.Int("right", b.Right))
	s.listeners.OnCalibrated(b)
	return b, nil
}

func (s *Session) Baseline() models.Baseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseline
}

// ID is empty until the first Clear
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) Config() posture.Config {
	return s.cfg
}

// Recent returns the newest n readings, oldest first
func (s *Session) Recent(n int) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Last(n)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		SessionID: s.id,
		Baseline:  s.baseline,
		Samples:   s.store.Samples(),
		Verdicts:  s.store.Verdicts(),
	}
	if last := s.store.Last(1); len(last) == 1 {
		snap.Latest = &last[0]
	}
	return snap
}
