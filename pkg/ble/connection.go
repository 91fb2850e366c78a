package ble

import (
	"context"
	"log/slog"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/currantlabs/ble"
	"github.com/pkg/errors"
)

const opQueueSize = 16

// connection serializes GATT operations for one peripheral on its own goroutine
type connection struct {
	central    *Central
	peripheral models.PeripheralHandle
	link       uint64
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	ops        chan func(*connection) error
	done       chan struct{}

	// owned by the worker goroutine
	client   gattClient
	services []*ble.Service
	chars    map[string]*ble.Characteristic
}

func newConnection(c *Central, p models.PeripheralHandle, link uint64) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		central:    c,
		peripheral: p,
		link:       link,
		logger:     c.logger.With(slog.String("peripheral", p.String()), slog.Uint64("link", link)),
		ctx:        ctx,
		cancel:     cancel,
		ops:        make(chan func(*connection) error, opQueueSize),
		done:       make(chan struct{}),
		chars:      map[string]*ble.Characteristic{},
	}
}

// dispatch tags e with this connection before handing it to the central
func (conn *connection) dispatch(e models.Event) {
	e.Peripheral = conn.peripheral
	e.Link = conn.link
	conn.central.dispatch(e)
}

func (conn *connection) enqueue(op func(*connection) error) error {
	if conn.ctx.Err() != nil {
		return errors.Errorf("connection to %s closed", conn.peripheral)
	}
	select {
	case conn.ops <- op:
		return nil
	default:
		return errors.Errorf("connection to %s busy", conn.peripheral)
	}
}

func (conn *connection) work() {
	defer conn.teardown()
	for {
		select {
		case <-conn.ctx.Done():
			return
		case op := <-conn.ops:
			if conn.ctx.Err() != nil {
				return
			}
			err := util.CatchErrs(func() error { return op(conn) })
			if err != nil && conn.ctx.Err() == nil {
				conn.logger.Warn("gatt operation failed", slog.String("error", err.Error()))
				conn.dispatch(models.Event{Kind: models.EventFailure, Err: err})
			}
		}
	}
}

// teardown cancels the link, waits for the stack to confirm it and reports EventDisconnected once
func (conn *connection) teardown() {
	if conn.client != nil {
		if err := util.CatchErrs(conn.client.CancelConnection); err != nil {
			conn.logger.Debug("CancelConnection issue", slog.String("error", err.Error()))
		}
		select {
		case <-conn.client.Disconnected():
		case <-time.After(conn.central.dialTimeout):
			conn.logger.Warn("no disconnect confirmation from the stack")
		}
	}
	conn.central.forgetConn(conn)
	conn.logger.Info("disconnected")
	conn.dispatch(models.Event{Kind: models.EventDisconnected})
	close(conn.done)
}

// watch ends the worker when the peripheral drops the link on its own
func (conn *connection) watch(cln gattClient) {
	select {
	case <-cln.Disconnected():
		conn.logger.Info("link dropped by peripheral")
		conn.cancel()
	case <-conn.ctx.Done():
	}
}

func (conn *connection) dial() error {
	ctx, cancel := context.WithTimeout(conn.ctx, conn.central.dialTimeout)
	defer cancel()
	cln, err := conn.central.methods.Dial(ctx, ble.NewAddr(conn.peripheral.ID))
	if err != nil {
		return errors.Wrap(err, "Dial issue")
	}
	conn.client = cln
	go conn.watch(cln)
	conn.logger.Info("connected")
	conn.dispatch(models.Event{Kind: models.EventConnected})
	return nil
}

func (conn *connection) gatt() (gattClient, error) {
	if conn.client == nil {
		return nil, errors.Errorf("%s not dialed", conn.peripheral)
	}
	return conn.client, nil
}

func (conn *connection) discoverServices(ids []string) error {
	cln, err := conn.gatt()
	if err != nil {
		return err
	}
	filter, err := parseUUIDs(ids)
	if err != nil {
		return err
	}
	svcs, err := cln.DiscoverServices(filter)
	if err != nil {
		return errors.Wrap(err, "DiscoverServices issue")
	}
	conn.services = nil
	found := []string{}
	for _, s := range svcs {
		if !matchesAny(s.UUID, ids) {
			continue
		}
		conn.services = append(conn.services, s)
		found = append(found, util.NormalizeUUID(s.UUID.String()))
	}
	conn.dispatch(models.Event{Kind: models.EventServicesFound, Services: found})
	return nil
}

func (conn *connection) discoverCharacteristics(services []string, chars []string) error {
	cln, err := conn.gatt()
	if err != nil {
		return err
	}
	filter, err := parseUUIDs(chars)
	if err != nil {
		return err
	}
	conn.chars = map[string]*ble.Characteristic{}
	for _, s := range conn.services {
		if !matchesAny(s.UUID, services) {
			continue
		}
		cs, err := cln.DiscoverCharacteristics(filter, s)
		if err != nil {
			return errors.Wrap(err, "DiscoverCharacteristics issue")
		}
		for _, ch := range cs {
			if !matchesAny(ch.UUID, chars) {
				continue
			}
			id := util.NormalizeUUID(ch.UUID.String())
			conn.chars[id] = ch
			conn.dispatch(models.Event{Kind: models.EventCharacteristicFound, Characteristic: id})
		}
	}
	conn.dispatch(models.Event{Kind: models.EventCharacteristicsDone})
	return nil
}

func (conn *connection) characteristic(id string) (*ble.Characteristic, error) {
	if ch, ok := conn.chars[util.NormalizeUUID(id)]; ok {
		return ch, nil
	}
	return nil, errors.Errorf("no such characteristic (%s) discovered on %s", id, conn.peripheral)
}

func (conn *connection) subscribe(id string) error {
	cln, err := conn.gatt()
	if err != nil {
		return err
	}
	ch, err := conn.characteristic(id)
	if err != nil {
		return err
	}
	// the CCCD has to be known before notifications can be enabled
	if _, err := cln.DiscoverDescriptors(nil, ch); err != nil {
		return errors.Wrap(err, "DiscoverDescriptors issue")
	}
	err = cln.Subscribe(ch, false, func(b []byte) {
		conn.dispatch(models.Event{Kind: models.EventValueUpdate, Data: append([]byte(nil), b...)})
	})
	if err != nil {
		return errors.Wrap(err, "Subscribe issue")
	}
	conn.dispatch(models.Event{Kind: models.EventSubscribed})
	return nil
}

func (conn *connection) read(id string) error {
	cln, err := conn.gatt()
	if err != nil {
		return err
	}
	ch, err := conn.characteristic(id)
	if err != nil {
		return err
	}
	data, err := cln.ReadCharacteristic(ch)
	if err != nil {
		return errors.Wrap(err, "ReadCharacteristic issue")
	}
	conn.dispatch(models.Event{Kind: models.EventValueUpdate, Data: data})
	return nil
}

func parseUUIDs(ids []string) ([]ble.UUID, error) {
	out := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := ble.Parse(id)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid uuid %q", id)
		}
		out = append(out, u)
	}
	return out, nil
}

func matchesAny(u ble.UUID, ids []string) bool {
	for _, id := range ids {
		if util.UuidEqualStr(u, id) {
			return true
		}
	}
	return false
}
