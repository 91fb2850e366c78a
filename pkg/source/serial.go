package source

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// Serial reads frames from a sensor wired to a serial port, one JSON object per line
type Serial struct {
	port string
	opts options
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)
}

func NewSerial(port string, opts ...Option) *Serial {
	return &Serial{port: port, opts: newOptions(opts), open: serial.Open}
}

func (s *Serial) openOptions() serial.OpenOptions {
	return serial.OpenOptions{
		PortName:        s.port,
		BaudRate:        s.opts.baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
}

// Run opens the port and ingests every non blank line until ctx is done or the port closes
func (s *Serial) Run(ctx context.Context, sink models.FrameSink) error {
	port, err := s.open(s.openOptions())
	if err != nil {
		return errors.Wrapf(err, "open serial port %s", s.port)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			port.Close()
		case <-done:
			port.Close()
		}
	}()

	s.opts.logger.Info("serial source started", slog.String("port", s.port), slog.Uint64("baud", uint64(s.opts.baud)))
	sink.Clear()
	defer sink.Reset()
	err = s.scan(port, sink)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Serial) scan(r io.Reader, sink models.FrameSink) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := sink.Ingest(line); err != nil {
			s.opts.logger.Debug("serial frame rejected", slog.String("error", err.Error()))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read serial port")
	}
	return nil
}
