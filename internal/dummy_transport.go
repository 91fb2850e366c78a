package internal

import (
	"sync"

	"github.com/TheSlimvReal/posture-client/pkg/models"
)

// TransportCall is one recorded request to DummyTransport
type TransportCall struct {
	Method     string
	Peripheral models.PeripheralHandle
	Link       uint64
	Args       []string
}

// DummyTransport records requests instead of talking to a radio.
// Fail makes the named method return an error; OnCall runs after every
// recorded request and is where tests feed events back into the client.
type DummyTransport struct {
	mu     sync.Mutex
	calls  []TransportCall
	Fail   map[string]error
	OnCall func(TransportCall)
}

func (d *DummyTransport) record(method string, p models.PeripheralHandle, args ...string) error {
	return d.recordLink(method, p, 0, args...)
}

func (d *DummyTransport) recordLink(method string, p models.PeripheralHandle, link uint64, args ...string) error {
	call := TransportCall{Method: method, Peripheral: p, Link: link, Args: args}
	d.mu.Lock()
	d.calls = append(d.calls, call)
	err := d.Fail[method]
	hook := d.OnCall
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(call)
	}
	return nil
}

func (d *DummyTransport) StartScan(service string) error {
	return d.record("StartScan", models.PeripheralHandle{}, service)
}

func (d *DummyTransport) StopScan() error {
	return d.record("StopScan", models.PeripheralHandle{})
}

func (d *DummyTransport) Connect(p models.PeripheralHandle, link uint64) error {
	return d.recordLink("Connect", p, link)
}

func (d *DummyTransport) DiscoverServices(p models.PeripheralHandle, services []string) error {
	return d.record("DiscoverServices", p, services...)
}

func (d *DummyTransport) DiscoverCharacteristics(p models.PeripheralHandle, services []string, chars []string) error {
	return d.record("DiscoverCharacteristics", p, append(append([]string{}, services...), chars...)...)
}

func (d *DummyTransport) Subscribe(p models.PeripheralHandle, char string) error {
	return d.record("Subscribe", p, char)
}

func (d *DummyTransport) Read(p models.PeripheralHandle, char string) error {
	return d.record("Read", p, char)
}

func (d *DummyTransport) Cancel(p models.PeripheralHandle, link uint64) error {
	return d.recordLink("Cancel", p, link)
}

func (d *DummyTransport) Calls() []TransportCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]TransportCall(nil), d.calls...)
}

// Methods returns the recorded method names in call order
func (d *DummyTransport) Methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []string{}
	for _, c := range d.calls {
		out = append(out, c.Method)
	}
	return out
}

// Count returns how often method was called
func (d *DummyTransport) Count(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (d *DummyTransport) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}
