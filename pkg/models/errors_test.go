package models

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

func TestDecodeErrorUnwraps(t *testing.T) {
	err := error(&DecodeError{Payload: []byte("{"), Err: errors.Wrap(ErrMalformedJSON, "unexpected EOF")})
	assert.Assert(t, errors.Is(err, ErrMalformedJSON))
	var de *DecodeError
	assert.Assert(t, errors.As(err, &de))
	assert.ErrorContains(t, err, `decode "{"`)
}

func TestDecodeErrorTruncatesPayload(t *testing.T) {
	err := &DecodeError{Payload: []byte(strings.Repeat("x", 100)), Err: ErrMalformedJSON}
	assert.Assert(t, strings.Contains(err.Error(), strings.Repeat("x", 64)+"..."))
}

func TestConnectionError(t *testing.T) {
	err := error(&ConnectionError{Peripheral: PeripheralHandle{ID: "AA"}, State: ServiceDiscovery, Err: ErrNoServices})
	assert.Assert(t, errors.Is(err, ErrNoServices))
	assert.Equal(t, err.Error(), "connection error in ServiceDiscovery (AA): no services found")

	err = &ConnectionError{State: Scanning, Err: ErrTimeout}
	assert.Equal(t, err.Error(), "connection error in Scanning: timeout")
}

func TestInsufficientHistoryError(t *testing.T) {
	err := &InsufficientHistoryError{Have: 4, Need: 5}
	assert.Equal(t, err.Error(), "insufficient history: have 4 samples, need 5")
}
