//go:build linux
// +build linux

package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpenRejectsUnsupportedBaudRate(t *testing.T) {
	_, err := Open("/dev/null", WithBaudRate(12345))
	assert.ErrorIs(t, err, ErrUnsupportedBaudRate)
}

func TestOpenNonTTYFails(t *testing.T) {
	// /dev/null accepts open but not termios configuration
	_, err := Open("/dev/null")
	assert.Error(t, err)
}

func TestOpenMissingDeviceFails(t *testing.T) {
	_, err := Open("/dev/does-not-exist-ttyXYZ")
	assert.Error(t, err)
}

func TestOptionsApply(t *testing.T) {
	var conf config

	for _, opt := range []Option{
		WithBaudRate(19200),
		WithParity(ParityEven),
		WithTwoStopBits(),
		WithReadTimeout(250 * time.Millisecond),
	} {
		opt(&conf)
	}

	assert.Equal(t, 19200, conf.baudRate)
	assert.Equal(t, ParityEven, conf.parity)
	assert.True(t, conf.twoStopBits)
	assert.Equal(t, 250*time.Millisecond, conf.readTimeout)
}
