package models

import (
	"fmt"

	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidUTF8 marks a frame whose bytes are not valid UTF-8 text
	ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")
	// ErrMalformedJSON marks a frame that is not a well formed JSON object
	ErrMalformedJSON = errors.New("payload is not a JSON object")
	// ErrMissingField marks a frame lacking one of left, middle or right
	ErrMissingField = errors.New("required field missing")
	// ErrInvalidField marks a frame where a required field is not an integer
	ErrInvalidField = errors.New("required field is not an integer")

	// ErrNoServices is reported when the peripheral exposes no data service
	ErrNoServices = errors.New("no services found")
	// ErrCharacteristicMissing is reported when the resistance characteristic is absent
	ErrCharacteristicMissing = errors.New("resistance characteristic missing")
	// ErrLinkLost is reported when the peripheral disconnects without being asked to
	ErrLinkLost = errors.New("connection lost")
	// ErrTimeout is reported when a connection step does not complete in time
	ErrTimeout = util.ErrTimeout
)

// DecodeError is returned for frames that cannot be turned into a SensorSample
type DecodeError struct {
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %s", truncate(e.Payload, 64), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConnectionError is reported when discovery or connection fails and the state machine falls back to Idle
type ConnectionError struct {
	Peripheral PeripheralHandle
	State      ConnectionState
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.Peripheral.ID == "" {
		return fmt.Sprintf("connection error in %s: %s", e.State, e.Err)
	}
	return fmt.Sprintf("connection error in %s (%s): %s", e.State, e.Peripheral.ID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InsufficientHistoryError is returned when calibration is attempted before a full window was received
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d samples, need %d", e.Have, e.Need)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
