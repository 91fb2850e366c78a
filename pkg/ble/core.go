package ble

import (
	"context"

	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/currantlabs/ble"
)

// advertisement is the part of ble.Advertisement the scanner reads
type advertisement interface {
	LocalName() string
	RSSI() int
	Address() ble.Addr
	Services() []ble.UUID
}

// gattClient is the part of ble.Client a connection drives
type gattClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	CancelConnection() error
	Disconnected() <-chan struct{}
}

type coreMethods interface {
	Scan(ctx context.Context, h func(advertisement)) error
	Dial(ctx context.Context, addr ble.Addr) (gattClient, error)
}

// realCoreMethods goes through the default device set by OpenDevice
type realCoreMethods struct{}

func (realCoreMethods) Scan(ctx context.Context, h func(advertisement)) error {
	return util.CatchErrs(func() error {
		return ble.Scan(ctx, true, func(a ble.Advertisement) { h(a) }, nil)
	})
}

func (realCoreMethods) Dial(ctx context.Context, addr ble.Addr) (gattClient, error) {
	var cln ble.Client
	err := util.CatchErrs(func() error {
		c, e := ble.Dial(ctx, addr)
		cln = c
		return e
	})
	if err != nil {
		return nil, err
	}
	return cln, nil
}
