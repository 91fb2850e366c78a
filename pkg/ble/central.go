// Package ble implements the client transport on top of github.com/currantlabs/ble.
// Requests return immediately; their outcome is dispatched as models.Event values.
package ble

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
)

// Central is a BLE central that talks to posture sensors
type Central struct {
	methods     coreMethods
	logger      *slog.Logger
	dialTimeout time.Duration

	mu         sync.Mutex
	sink       models.EventSink
	scanCancel context.CancelFunc
	scanID     uint64
	conns      map[string]*connection
}

type Option func(*Central)

func WithLogger(l *slog.Logger) Option {
	return func(c *Central) { c.logger = l }
}

// WithDialTimeout bounds a single connection attempt
func WithDialTimeout(d time.Duration) Option {
	return func(c *Central) { c.dialTimeout = d }
}

func withCoreMethods(m coreMethods) Option {
	return func(c *Central) { c.methods = m }
}

// NewCentral needs an open default device, see OpenDevice
func NewCentral(opts ...Option) *Central {
	c := &Central{
		methods:     realCoreMethods{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		dialTimeout: util.DefaultDialTimeout,
		conns:       map[string]*connection{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind sets where results are dispatched; it must be called before any request
func (c *Central) Bind(sink models.EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

func (c *Central) dispatch(e models.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		c.logger.Warn("no event sink bound, dropping event", slog.String("event", e.Kind.String()))
		return
	}
	sink.Dispatch(e)
}

// StartScan reports every advertisement carrying service, repeats included
func (c *Central) StartScan(service string) error {
	c.mu.Lock()
	if c.scanCancel != nil {
		c.mu.Unlock()
		return errors.New("scan already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.scanCancel = cancel
	c.scanID++
	id := c.scanID
	c.mu.Unlock()

	c.logger.Info("scanning", slog.String("service", service))
	go func() {
		defer cancel()
		err := c.methods.Scan(ctx, func(a advertisement) {
			if ctx.Err() != nil || !advertises(a, service) {
				return
			}
			c.dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: models.PeripheralHandle{
				ID:   a.Address().String(),
				Name: a.LocalName(),
				RSSI: a.RSSI(),
			}})
		})
		c.mu.Lock()
		if c.scanID == id {
			c.scanCancel = nil
		}
		c.mu.Unlock()
		if err != nil && ctx.Err() == nil {
			c.dispatch(models.Event{Kind: models.EventFailure, Err: errors.Wrap(err, "Scan issue")})
		}
	}()
	return nil
}

func (c *Central) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
	return nil
}

func advertises(a advertisement, service string) bool {
	if service == "" {
		return true
	}
	for _, s := range a.Services() {
		if util.UuidEqualStr(s, service) {
			return true
		}
	}
	return false
}

// Connect dials p on a dedicated worker; EventConnected or EventFailure follows.
// Every event of the connection is tagged with link.
func (c *Central) Connect(p models.PeripheralHandle, link uint64) error {
	key := strings.ToUpper(p.ID)
	c.mu.Lock()
	if _, ok := c.conns[key]; ok {
		c.mu.Unlock()
		return errors.Errorf("already connected to %s", p)
	}
	conn := newConnection(c, p, link)
	c.conns[key] = conn
	c.mu.Unlock()

	go conn.work()
	return conn.enqueue((*connection).dial)
}

func (c *Central) DiscoverServices(p models.PeripheralHandle, services []string) error {
	return c.enqueue(p, func(conn *connection) error { return conn.discoverServices(services) })
}

func (c *Central) DiscoverCharacteristics(p models.PeripheralHandle, services []string, chars []string) error {
	return c.enqueue(p, func(conn *connection) error { return conn.discoverCharacteristics(services, chars) })
}

func (c *Central) Subscribe(p models.PeripheralHandle, char string) error {
	return c.enqueue(p, func(conn *connection) error { return conn.subscribe(char) })
}

func (c *Central) Read(p models.PeripheralHandle, char string) error {
	return c.enqueue(p, func(conn *connection) error { return conn.read(char) })
}

// Cancel tears link to p down. EventDisconnected follows, right away when
// link is not the live connection to p. A newer link to p is left alone.
func (c *Central) Cancel(p models.PeripheralHandle, link uint64) error {
	conn := c.forget(p, link)
	if conn == nil {
		c.dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: p, Link: link})
		return nil
	}
	conn.cancel()
	return nil
}

// Close stops scanning and tears down every connection
func (c *Central) Close() error {
	c.StopScan()
	c.mu.Lock()
	conns := c.conns
	c.conns = map[string]*connection{}
	c.mu.Unlock()
	for _, conn := range conns {
		conn.cancel()
	}
	return nil
}

func (c *Central) lookup(p models.PeripheralHandle) *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[strings.ToUpper(p.ID)]
}

func (c *Central) enqueue(p models.PeripheralHandle, op func(*connection) error) error {
	conn := c.lookup(p)
	if conn == nil {
		return errors.Errorf("not connected to %s", p)
	}
	return conn.enqueue(op)
}

// forget removes the connection to p and returns it, if it is link
func (c *Central) forget(p models.PeripheralHandle, link uint64) *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToUpper(p.ID)
	conn := c.conns[key]
	if conn == nil || conn.link != link {
		return nil
	}
	delete(c.conns, key)
	return conn
}

// forgetConn removes conn unless a newer connection took its place
func (c *Central) forgetConn(conn *connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToUpper(conn.peripheral.ID)
	if c.conns[key] == conn {
		delete(c.conns, key)
	}
}
