package util

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

func TestTimeout(t *testing.T) {
	x := time.Millisecond * 50
	err := Timeout(func() error {
		time.Sleep(x * 4)
		return errors.New("should not get called")
	}, x)
	assert.Equal(t, err, ErrTimeout)
}

func TestTimeoutReturnsResult(t *testing.T) {
	expected := errors.New("done early")
	err := Timeout(func() error { return expected }, time.Second)
	assert.Equal(t, err, expected)
	assert.NilError(t, Timeout(func() error { return nil }, time.Second))
}
