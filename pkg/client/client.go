// Package client drives one posture sensor from discovery to a live
// resistance subscription and feeds its notifications into a FrameSink.
package client

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/bradfitz/slice"
	mapset "github.com/deckarep/golang-set"
)

// Client is the connection state machine. Every input, caller request or
// transport notification, is a models.Event handled by Dispatch one at a time.
type Client struct {
	transport     Transport
	logger        *slog.Logger
	listeners     models.ConnectionListeners
	stepTimeout   time.Duration
	retryInterval time.Duration

	queueMu  sync.Mutex
	queue    []models.Event
	draining bool

	// guarded by mu for readers; written only while draining
	mu          sync.RWMutex
	state       models.ConnectionState
	peripheral  models.PeripheralHandle
	peripherals map[string]models.PeripheralHandle
	sink        models.FrameSink
	autoConnect func(models.PeripheralHandle) bool

	// touched only while draining
	discovered mapset.Set
	pending    *models.PeripheralHandle
	charFound  bool
	// link names the live connection attempt, 0 when there is none; links counts attempts
	link  uint64
	links uint64
	step  uint64
	timer *time.Timer

	failures chan error
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithListener registers a listener for state changes, discoveries and connection errors
func WithListener(l models.ConnectionListener) Option {
	return func(c *Client) { c.listeners = append(c.listeners, l) }
}

// WithSink sets the pipeline that receives resistance frames while subscribed
func WithSink(s models.FrameSink) Option {
	return func(c *Client) { c.sink = s }
}

// WithStepTimeout bounds connecting, discovery and teardown steps; 0 disables the bound
func WithStepTimeout(d time.Duration) Option {
	return func(c *Client) { c.stepTimeout = d }
}

// WithAutoConnect connects to the first discovered peripheral accepted by match
func WithAutoConnect(match func(models.PeripheralHandle) bool) Option {
	return func(c *Client) { c.autoConnect = match }
}

// WithRetryInterval sets the pause Run takes before scanning again after a connection error
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:     transport,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		stepTimeout:   util.DefaultStepTimeout,
		retryInterval: util.DefaultRetryInterval,
		state:         models.Idle,
		peripherals:   map[string]models.PeripheralHandle{},
		discovered:    mapset.NewSet(),
		failures:      make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch queues e and, unless another caller is already draining the queue,
// handles queued events until it is empty. Handlers may dispatch re-entrantly.
func (c *Client) Dispatch(e models.Event) {
	c.queueMu.Lock()
	c.queue = append(c.queue, e)
	if c.draining {
		c.queueMu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()
		c.handle(next)
		c.queueMu.Lock()
	}
	c.draining = false
	c.queueMu.Unlock()
}

func (c *Client) StartScan() { c.Dispatch(models.Event{Kind: models.EventStartScan}) }

func (c *Client) StopScan() { c.Dispatch(models.Event{Kind: models.EventStopScan}) }

// Connect picks p; while another peripheral is linked it is disconnected first
func (c *Client) Connect(p models.PeripheralHandle) {
	c.Dispatch(models.Event{Kind: models.EventConnect, Peripheral: p})
}

func (c *Client) Disconnect() { c.Dispatch(models.Event{Kind: models.EventDisconnectRequest}) }

func (c *Client) State() models.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Peripheral returns the tracked peripheral, if any
func (c *Client) Peripheral() (models.PeripheralHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peripheral, c.peripheral.ID != ""
}

// Peripherals returns the peripherals discovered by the current scan, ordered by name then id
func (c *Client) Peripherals() []models.PeripheralHandle {
	c.mu.RLock()
	out := make([]models.PeripheralHandle, 0, len(c.peripherals))
	for _, p := range c.peripherals {
		out = append(out, p)
	}
	c.mu.RUnlock()
	slice.Sort(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Client) setSink(s models.FrameSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}
