package internal

import (
	"sync"

	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/currantlabs/ble"
)

// DummyCoreClient stands in for a dialed ble.Client. It serves the services and
// characteristics it was built with and records what the central does to it.
type DummyCoreClient struct {
	mu           sync.Mutex
	services     []*ble.Service
	handler      ble.NotificationHandler
	subscribed   []*ble.Characteristic
	cancels      int
	disconnected chan struct{}
	once         sync.Once

	ReadData []byte
	Err      map[string]error
}

// NewDummyCoreClient builds a client exposing service uuid -> characteristic uuids
func NewDummyCoreClient(layout map[string][]string) *DummyCoreClient {
	c := &DummyCoreClient{disconnected: make(chan struct{}), Err: map[string]error{}}
	for svc, chars := range layout {
		s := &ble.Service{UUID: ble.MustParse(svc)}
		for _, ch := range chars {
			s.Characteristics = append(s.Characteristics, ble.NewCharacteristic(ble.MustParse(ch)))
		}
		c.services = append(c.services, s)
	}
	return c
}

func (c *DummyCoreClient) fail(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Err[method]
}

func (c *DummyCoreClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	if err := c.fail("DiscoverServices"); err != nil {
		return nil, err
	}
	out := []*ble.Service{}
	for _, s := range c.services {
		if matches(s.UUID, filter) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *DummyCoreClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	if err := c.fail("DiscoverCharacteristics"); err != nil {
		return nil, err
	}
	out := []*ble.Characteristic{}
	for _, ch := range s.Characteristics {
		if matches(ch.UUID, filter) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *DummyCoreClient) DiscoverDescriptors(filter []ble.UUID, char *ble.Characteristic) ([]*ble.Descriptor, error) {
	return nil, c.fail("DiscoverDescriptors")
}

func (c *DummyCoreClient) Subscribe(char *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	if err := c.fail("Subscribe"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	c.subscribed = append(c.subscribed, char)
	return nil
}

func (c *DummyCoreClient) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
	if err := c.fail("ReadCharacteristic"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.ReadData...), nil
}

func (c *DummyCoreClient) CancelConnection() error {
	c.mu.Lock()
	c.cancels++
	c.mu.Unlock()
	c.Drop()
	return nil
}

func (c *DummyCoreClient) Disconnected() <-chan struct{} { return c.disconnected }

// Notify delivers data to the subscribed handler as the peripheral would
func (c *DummyCoreClient) Notify(data []byte) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Drop closes the link from the peripheral side
func (c *DummyCoreClient) Drop() {
	c.once.Do(func() { close(c.disconnected) })
}

func (c *DummyCoreClient) Subscribed() []*ble.Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ble.Characteristic(nil), c.subscribed...)
}

func (c *DummyCoreClient) Cancels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

func matches(u ble.UUID, filter []ble.UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if util.UuidEqualStr(u, f.String()) {
			return true
		}
	}
	return false
}
