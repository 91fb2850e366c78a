//go:build !linux && !darwin

package ble

import (
	"runtime"

	"github.com/currantlabs/ble"
	"github.com/pkg/errors"
)

func newDevice() (ble.Device, error) {
	return nil, errors.Errorf("no bluetooth device support on %s", runtime.GOOS)
}
