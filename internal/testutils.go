package internal

import (
	"sync"

	"github.com/TheSlimvReal/posture-client/pkg/models"
)

// Transition is one recorded OnStateChanged callback
type Transition struct {
	From models.ConnectionState
	To   models.ConnectionState
}

// TestListener records every connection and session callback
type TestListener struct {
	mu           sync.Mutex
	transitions  []Transition
	found        []models.PeripheralHandle
	connErrors   []error
	readings     []models.Reading
	decodeErrors []error
	baselines    []models.Baseline
}

func (l *TestListener) OnStateChanged(from models.ConnectionState, to models.ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, Transition{from, to})
}

func (l *TestListener) OnPeripheralFound(p models.PeripheralHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.found = append(l.found, p)
}

func (l *TestListener) OnConnectionError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connErrors = append(l.connErrors, err)
}

func (l *TestListener) OnReading(r models.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readings = append(l.readings, r)
}

func (l *TestListener) OnDecodeError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decodeErrors = append(l.decodeErrors, err)
}

func (l *TestListener) OnCalibrated(b models.Baseline) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baselines = append(l.baselines, b)
}

func (l *TestListener) Transitions() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.transitions...)
}

// States returns the target state of every recorded transition
func (l *TestListener) States() []models.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []models.ConnectionState{}
	for _, t := range l.transitions {
		out = append(out, t.To)
	}
	return out
}

func (l *TestListener) Found() []models.PeripheralHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.PeripheralHandle(nil), l.found...)
}

func (l *TestListener) ConnectionErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.connErrors...)
}

func (l *TestListener) Readings() []models.Reading {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Reading(nil), l.readings...)
}

func (l *TestListener) DecodeErrors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.decodeErrors...)
}

func (l *TestListener) Baselines() []models.Baseline {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Baseline(nil), l.baselines...)
}

// DummyFrameSink records what the connection state machine feeds the pipeline
type DummyFrameSink struct {
	mu        sync.Mutex
	Frames    [][]byte
	Clears    int
	Resets    int
	IngestErr error
}

func (s *DummyFrameSink) Ingest(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, append([]byte(nil), frame...))
	return s.IngestErr
}

func (s *DummyFrameSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Clears++
	s.Frames = nil
}

func (s *DummyFrameSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resets++
	s.Frames = nil
}

func (s *DummyFrameSink) Snapshot() (frames [][]byte, clears int, resets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.Frames...), s.Clears, s.Resets
}
