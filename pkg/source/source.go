// Package source provides the producers of resistance frames. The live BLE
// client is one (client.Client); this package adds a synthetic generator for
// running without hardware and a serial port reader for wired sensors.
package source

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
)

// Source feeds frames into sink until ctx is done
type Source interface {
	Run(ctx context.Context, sink models.FrameSink) error
}

type options struct {
	logger   *slog.Logger
	interval time.Duration
	seed     uint64
	baud     uint
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInterval sets how often the synthetic source emits a frame
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithSeed makes the synthetic source reproducible; 0 seeds from the clock
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithBaud sets the serial line speed
func WithBaud(baud uint) Option {
	return func(o *options) { o.baud = baud }
}

func newOptions(opts []Option) options {
	o := options{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		interval: time.Second,
		baud:     115200,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
