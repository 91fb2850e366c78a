package source

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/frame"
	"github.com/TheSlimvReal/posture-client/pkg/models"
)

// The generator draws from a Gaussian centred in [syntheticLow, syntheticHigh]
// with six standard deviations spanning the range, clamped to it.
// right mirrors left around syntheticMirror.
const (
	syntheticLow    = 500
	syntheticHigh   = 2000
	syntheticMirror = 2500
)

// Synthetic emits plausible sensor frames without hardware
type Synthetic struct {
	opts options
	mu   sync.Mutex
	rng  *rand.Rand
}

func NewSynthetic(opts ...Option) *Synthetic {
	o := newOptions(opts)
	seed := o.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Synthetic{opts: o, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next draws one sample
func (s *Synthetic) Next() models.SensorSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.gaussian()
	middle := s.gaussian()
	return models.SensorSample{Left: left, Middle: middle, Right: syntheticMirror - left}
}

func (s *Synthetic) gaussian() int {
	mean := float64(syntheticLow+syntheticHigh) / 2
	deviation := float64(syntheticHigh-syntheticLow) / 6
	v := int(math.Round(mean + s.rng.NormFloat64()*deviation))
	if v < syntheticLow {
		return syntheticLow
	}
	if v > syntheticHigh {
		return syntheticHigh
	}
	return v
}

// Run starts a fresh session and ingests one encoded sample per interval.
// The session is reset when ctx is done.
func (s *Synthetic) Run(ctx context.Context, sink models.FrameSink) error {
	sink.Clear()
	defer sink.Reset()
	s.opts.logger.Info("synthetic source started", slog.Duration("interval", s.opts.interval))
	ticker := time.NewTicker(s.opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sink.Ingest(frame.Encode(s.Next())); err != nil {
				s.opts.logger.Warn("synthetic frame rejected", slog.String("error", err.Error()))
			}
		}
	}
}
