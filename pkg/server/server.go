// Package server emulates the posture sensor as a BLE peripheral. It advertises
// the data service and notifies every frame it ingests, so the client can be
// exercised end to end with a second machine and no sensor hardware.
package server

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/currantlabs/ble"
	"github.com/pkg/errors"
)

type peripheralMethods interface {
	AddService(*ble.Service) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
}

type realPeripheralMethods struct{}

func (realPeripheralMethods) AddService(svc *ble.Service) error {
	return util.CatchErrs(func() error { return ble.AddService(svc) })
}

func (realPeripheralMethods) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	return util.CatchErrs(func() error { return ble.AdvertiseNameAndServices(ctx, name, uuids...) })
}

type notifier interface {
	Context() context.Context
	Write(b []byte) (int, error)
	Cap() int
}

// SensorServer implements models.FrameSink; feed it from a source
type SensorServer struct {
	name     string
	logger   *slog.Logger
	listener StatusListener
	methods  peripheralMethods

	mu     sync.Mutex
	latest []byte
	subs   map[uint64]notifier
	nextID uint64
	status Status
}

type Option func(*SensorServer)

func WithLogger(l *slog.Logger) Option {
	return func(s *SensorServer) { s.logger = l }
}

func WithListener(l StatusListener) Option {
	return func(s *SensorServer) { s.listener = l }
}

func withPeripheralMethods(m peripheralMethods) Option {
	return func(s *SensorServer) { s.methods = m }
}

func NewSensorServer(name string, opts ...Option) *SensorServer {
	s := &SensorServer{
		name:     name,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		listener: nopStatusListener{},
		methods:  realPeripheralMethods{},
		subs:     map[uint64]notifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Service builds the data service with the readable and notifying resistance characteristic
func (s *SensorServer) Service() *ble.Service {
	svc := ble.NewService(ble.MustParse(util.DataServiceUUID))
	c := svc.NewCharacteristic(ble.MustParse(util.ResistanceCharUUID))
	c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		rsp.Write(s.Latest())
	}))
	c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		s.serveNotifier(n)
	}))
	return svc
}

// Serve registers the service and advertises until ctx is done
func (s *SensorServer) Serve(ctx context.Context) error {
	if err := s.methods.AddService(s.Service()); err != nil {
		s.setStatus(Crashed, err)
		return errors.Wrap(err, "AddService issue")
	}
	s.setStatus(Advertising, nil)
	s.logger.Info("advertising", slog.String("name", s.name), slog.String("service", util.DataServiceUUID))
	err := s.methods.AdvertiseNameAndServices(ctx, s.name, ble.MustParse(util.DataServiceUUID))
	if ctx.Err() != nil {
		s.setStatus(Stopped, nil)
		return nil
	}
	if err == nil {
		err = errors.New("advertising ended")
	}
	s.setStatus(Crashed, err)
	return errors.Wrap(err, "AdvertiseNameAndServices issue")
}

func (s *SensorServer) setStatus(status Status, err error) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.listener.OnServerStatusChanged(status, err)
}

func (s *SensorServer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// serveNotifier blocks until the central unsubscribes
func (s *SensorServer) serveNotifier(n notifier) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = n
	count := len(s.subs)
	s.mu.Unlock()
	s.logger.Info("central subscribed", slog.Int("subscribers", count))
	s.listener.OnSubscribersChanged(count)

	<-n.Context().Done()

	s.mu.Lock()
	delete(s.subs, id)
	count = len(s.subs)
	s.mu.Unlock()
	s.logger.Info("central unsubscribed", slog.Int("subscribers", count))
	s.listener.OnSubscribersChanged(count)
}

func (s *SensorServer) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Latest is the newest frame, served to reads
func (s *SensorServer) Latest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.latest...)
}

// Ingest notifies frame to every subscriber. A subscriber whose write fails is
// dropped; it is removed for good once its context ends.
func (s *SensorServer) Ingest(frame []byte) error {
	s.mu.Lock()
	s.latest = append(s.latest[:0], frame...)
	subs := make(map[uint64]notifier, len(s.subs))
	for id, n := range s.subs {
		subs[id] = n
	}
	s.mu.Unlock()

	var failed error
	for id, n := range subs {
		if c := n.Cap(); c > 0 && len(frame) > c {
			s.logger.Warn("frame exceeds notification size", slog.Int("size", len(frame)), slog.Int("cap", c))
		}
		if _, err := n.Write(frame); err != nil {
			failed = errors.Wrap(err, "notify issue")
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		}
	}
	return failed
}

// Clear keeps subscribers and drops the last frame
func (s *SensorServer) Clear() {
	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
}

// Reset is Clear; the emulator keeps no baseline to restore
func (s *SensorServer) Reset() {
	s.Clear()
}
