package client

import (
	"log/slog"
	"strings"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
)

var (
	dataServices    = []string{util.DataServiceUUID}
	resistanceChars = []string{util.ResistanceCharUUID}
)

func (c *Client) handle(e models.Event) {
	state := c.state
	switch e.Kind {
	case models.EventStartScan:
		if state != models.Idle {
			c.drop(e, "already active")
			return
		}
		c.startScan()

	case models.EventStopScan:
		if state != models.Scanning {
			c.drop(e, "not scanning")
			return
		}
		c.stopScan()
		c.setState(models.Idle)

	case models.EventPeripheralFound:
		if state != models.Scanning {
			c.drop(e, "not scanning")
			return
		}
		c.found(e.Peripheral)

	case models.EventConnect:
		c.connect(e.Peripheral)

	case models.EventConnected:
		if !c.expects(e, models.Connecting) {
			return
		}
		c.setState(models.ServiceDiscovery)
		c.request("DiscoverServices", func() error {
			return c.transport.DiscoverServices(c.peripheral, dataServices)
		})

	case models.EventServicesFound:
		if !c.expects(e, models.ServiceDiscovery) {
			return
		}
		if len(e.Services) == 0 {
			c.fail(models.ErrNoServices)
			return
		}
		c.charFound = false
		c.setState(models.CharacteristicDiscovery)
		c.request("DiscoverCharacteristics", func() error {
			return c.transport.DiscoverCharacteristics(c.peripheral, e.Services, resistanceChars)
		})

	case models.EventCharacteristicFound:
		if !c.expects(e, models.CharacteristicDiscovery) {
			return
		}
		if c.charFound || !util.UuidStrEqualStr(e.Characteristic, util.ResistanceCharUUID) {
			c.drop(e, "not the resistance characteristic or already subscribing")
			return
		}
		c.charFound = true
		p := c.peripheral
		if !c.request("Subscribe", func() error { return c.transport.Subscribe(p, e.Characteristic) }) {
			return
		}
		c.request("Read", func() error { return c.transport.Read(p, e.Characteristic) })

	case models.EventCharacteristicsDone:
		if !c.expects(e, models.CharacteristicDiscovery) {
			return
		}
		if !c.charFound {
			c.fail(models.ErrCharacteristicMissing)
		}

	case models.EventSubscribed:
		if !c.expects(e, models.CharacteristicDiscovery) {
			return
		}
		if !c.charFound {
			c.drop(e, "no subscription requested")
			return
		}
		if sink := c.currentSink(); sink != nil {
			sink.Clear()
		}
		c.setState(models.Subscribed)

	case models.EventValueUpdate:
		if !c.expects(e, models.Subscribed) {
			return
		}
		if sink := c.currentSink(); sink != nil {
			if err := sink.Ingest(e.Data); err != nil {
				c.logger.Debug("frame rejected", slog.String("error", err.Error()))
			}
		}

	case models.EventDisconnectRequest:
		c.pending = nil
		switch {
		case state == models.Scanning:
			c.stopScan()
			c.setState(models.Disconnecting)
			c.release()
			c.setState(models.Idle)
		case state.Linked():
			c.beginDisconnect()
		default:
			c.drop(e, "nothing to disconnect")
		}

	case models.EventDisconnected:
		switch {
		case !c.owns(e):
			c.drop(e, "stale link")
		case state == models.Disconnecting && c.tracks(e.Peripheral):
			c.finishDisconnect()
		case state.Linked() && c.tracks(e.Peripheral):
			c.fail(models.ErrLinkLost)
		default:
			c.drop(e, "not linked")
		}

	case models.EventFailure:
		switch {
		case !c.owns(e):
			c.drop(e, "stale link")
		case state == models.Disconnecting && c.tracks(e.Peripheral):
			c.logger.Warn("teardown failed", slog.String("error", errString(e.Err)))
			c.finishDisconnect()
		case (state == models.Scanning || state.Linked()) && c.tracks(e.Peripheral):
			c.fail(e.Err)
		default:
			c.drop(e, "nothing in progress")
		}

	case models.EventTimeout:
		if e.Step != c.step || c.timer == nil {
			c.drop(e, "stale step")
			return
		}
		if state == models.Disconnecting {
			c.logger.Warn("teardown timed out, forcing idle")
			c.finishDisconnect()
			return
		}
		c.fail(models.ErrTimeout)

	default:
		c.drop(e, "unknown event")
	}
}

func (c *Client) startScan() {
	c.discovered.Clear()
	c.mu.Lock()
	c.peripherals = map[string]models.PeripheralHandle{}
	c.mu.Unlock()
	c.setState(models.Scanning)
	c.request("StartScan", func() error { return c.transport.StartScan(util.DataServiceUUID) })
}

func (c *Client) stopScan() {
	if err := c.transport.StopScan(); err != nil {
		c.logger.Warn("StopScan issue", slog.String("error", err.Error()))
	}
}

func (c *Client) found(p models.PeripheralHandle) {
	if p.ID == "" {
		return
	}
	key := normalizedID(p.ID)
	c.mu.Lock()
	c.peripherals[key] = p
	c.mu.Unlock()
	if !c.discovered.Add(key) {
		return
	}
	c.logger.Info("peripheral found", slog.String("peripheral", p.String()), slog.Int("rssi", p.RSSI))
	c.listeners.OnPeripheralFound(p)
	if match := c.autoConnectMatch(); match != nil && match(p) {
		c.Dispatch(models.Event{Kind: models.EventConnect, Peripheral: p})
	}
}

func (c *Client) connect(p models.PeripheralHandle) {
	switch state := c.state; {
	case p.ID == "":
		c.drop(models.Event{Kind: models.EventConnect}, "no peripheral")
	case state == models.Scanning:
		c.stopScan()
		c.beginConnect(p)
	case state.Linked():
		if c.tracks(p) {
			c.drop(models.Event{Kind: models.EventConnect, Peripheral: p}, "already connected")
			return
		}
		c.pending = &p
		c.beginDisconnect()
	case state == models.Disconnecting:
		c.pending = &p
	default:
		c.drop(models.Event{Kind: models.EventConnect, Peripheral: p}, "scan first")
	}
}

func (c *Client) beginConnect(p models.PeripheralHandle) {
	c.mu.Lock()
	c.peripheral = p
	c.mu.Unlock()
	c.links++
	c.link = c.links
	link := c.link
	c.setState(models.Connecting)
	c.request("Connect", func() error { return c.transport.Connect(p, link) })
}

func (c *Client) beginDisconnect() {
	p := c.peripheral
	c.setState(models.Disconnecting)
	if err := c.transport.Cancel(p, c.link); err != nil {
		c.logger.Warn("Cancel issue", slog.String("error", err.Error()))
		c.finishDisconnect()
	}
}

func (c *Client) finishDisconnect() {
	c.release()
	c.setState(models.Idle)
	if c.pending != nil {
		p := *c.pending
		c.pending = nil
		c.beginConnect(p)
	}
}

// release drops the tracked peripheral and resets the pipeline
func (c *Client) release() {
	if sink := c.currentSink(); sink != nil {
		sink.Reset()
	}
	c.charFound = false
	c.link = 0
	c.mu.Lock()
	c.peripheral = models.PeripheralHandle{}
	c.mu.Unlock()
}

// fail reports err as a ConnectionError and falls back to Idle without retrying
func (c *Client) fail(err error) {
	from := c.state
	cerr := &models.ConnectionError{Peripheral: c.peripheral, State: from, Err: err}
	c.logger.Warn("connection error", slog.String("state", from.String()), slog.String("error", errString(err)))
	switch {
	case from == models.Scanning:
		c.stopScan()
	case from.Linked():
		if e := c.transport.Cancel(c.peripheral, c.link); e != nil {
			c.logger.Debug("Cancel issue", slog.String("error", e.Error()))
		}
		c.release()
	}
	c.pending = nil
	c.setState(models.Idle)
	c.listeners.OnConnectionError(cerr)
	select {
	case c.failures <- cerr:
	default:
	}
}

// request issues a transport call and turns a synchronous error into a failure
func (c *Client) request(name string, fn func() error) bool {
	if err := util.CatchErrs(fn); err != nil {
		c.fail(errors.Wrap(err, name+" issue"))
		return false
	}
	return true
}

func (c *Client) setState(to models.ConnectionState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.armStep(to)
	if from == to {
		return
	}
	c.logger.Debug("state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	c.listeners.OnStateChanged(from, to)
}

// armStep starts a new step and bounds it when the state waits on the radio
func (c *Client) armStep(s models.ConnectionState) {
	c.step++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.stepTimeout <= 0 {
		return
	}
	switch s {
	case models.Connecting, models.ServiceDiscovery, models.CharacteristicDiscovery, models.Disconnecting:
		step := c.step
		c.timer = time.AfterFunc(c.stepTimeout, func() {
			c.Dispatch(models.Event{Kind: models.EventTimeout, Step: step})
		})
	}
}

// expects reports whether e applies to the current state and tracked peripheral, dropping it otherwise
func (c *Client) expects(e models.Event, s models.ConnectionState) bool {
	if c.state != s {
		c.drop(e, "unexpected in "+c.state.String())
		return false
	}
	if !c.tracks(e.Peripheral) {
		c.drop(e, "other peripheral")
		return false
	}
	if !c.owns(e) {
		c.drop(e, "stale link")
		return false
	}
	return true
}

// owns reports whether e comes from the live connection attempt; untagged events always do
func (c *Client) owns(e models.Event) bool {
	return e.Link == 0 || e.Link == c.link
}

// tracks reports whether p names the tracked peripheral; events without a peripheral match
func (c *Client) tracks(p models.PeripheralHandle) bool {
	return p.ID == "" || c.peripheral.ID == "" || c.peripheral.Same(p)
}

func (c *Client) drop(e models.Event, reason string) {
	c.logger.Debug("event dropped",
		slog.String("event", e.Kind.String()),
		slog.String("state", c.state.String()),
		slog.String("peripheral", e.Peripheral.ID),
		slog.String("reason", reason))
}

func (c *Client) autoConnectMatch() func(models.PeripheralHandle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoConnect
}

func (c *Client) currentSink() models.FrameSink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sink
}

func normalizedID(id string) string {
	return strings.ToUpper(id)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
