package session

import (
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/pkg/errors"
)

// Store keeps samples and their verdicts as one sequence of readings, so both
// histories always have the same length and are truncated and cleared together.
// Store is not safe for concurrent use; Session guards it.
type Store struct {
	readings *ring[models.Reading]
}

// NewStore creates a store that retains the newest capacity readings
func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("history capacity must be > 0, got %d", capacity)
	}
	return &Store{readings: newRing[models.Reading](capacity)}, nil
}

func (s *Store) Append(r models.Reading) {
	s.readings.push(r)
}

// Last returns the newest n readings, oldest first
func (s *Store) Last(n int) []models.Reading {
	return s.readings.last(n)
}

// LastSamples returns the samples of the newest n readings, oldest first
func (s *Store) LastSamples(n int) []models.SensorSample {
	return samplesOf(s.readings.last(n))
}

func (s *Store) Readings() []models.Reading {
	return s.readings.last(s.readings.len())
}

func (s *Store) Samples() []models.SensorSample {
	return samplesOf(s.Readings())
}

func (s *Store) Verdicts() []models.PostureVerdict {
	rs := s.Readings()
	out := make([]models.PostureVerdict, len(rs))
	for i, r := range rs {
		out[i] = r.Verdict
	}
	return out
}

func (s *Store) Len() int {
	return s.readings.len()
}

func (s *Store) Cap() int {
	return len(s.readings.buf)
}

func (s *Store) Clear() {
	s.readings.clear()
}

func samplesOf(rs []models.Reading) []models.SensorSample {
	out := make([]models.SensorSample, len(rs))
	for i, r := range rs {
		out[i] = r.Sample
	}
	return out
}
