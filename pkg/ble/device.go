package ble

import (
	"log/slog"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/currantlabs/ble"
	"github.com/pkg/errors"
)

const (
	openAttempts = 3
	openDelay    = 500 * time.Millisecond
)

// Device is the host controller used by every Central in the process
type Device struct {
	dev ble.Device
}

// OpenDevice opens the platform device and makes it the default for scanning and dialing.
// Opening the HCI socket fails now and then right after a previous process released it,
// so it is retried a few times.
func OpenDevice(logger *slog.Logger) (*Device, error) {
	var dev ble.Device
	err := util.Retry(openAttempts, func() error {
		d, err := newDevice()
		if err != nil {
			return errors.Wrap(err, "newDevice issue")
		}
		dev = d
		return nil
	}, func(attempt int, err error) {
		logger.Warn("opening bluetooth device failed, retrying", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		time.Sleep(openDelay)
	})
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)
	return &Device{dev: dev}, nil
}

func (d *Device) Close() error {
	return util.CatchErrs(d.dev.Stop)
}
