package ble

import (
	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/darwin"
)

func newDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
