//go:build linux
// +build linux

package spibus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpiIocNumbers(t *testing.T) {
	// reference values from linux/spi/spidev.h on a 64-bit kernel
	assert.Equal(t, uintptr(0x40016B01), spiIocWrMode)
	assert.Equal(t, uintptr(0x40016B03), spiIocWrBitsPerWord)
	assert.Equal(t, uintptr(0x40046B04), spiIocWrMaxSpeedHz)
	assert.Equal(t, uintptr(0x40206B00), spiIocMessage(1))
	assert.Equal(t, uintptr(0x40406B00), spiIocMessage(2))
}

func TestSpiTransferLayout(t *testing.T) {
	assert.Equal(t, uintptr(32), spiTransferSize)
}

func TestTransferBufferValidation(t *testing.T) {
	d := &Device{speedHz: 500000, bits: 8}

	assert.ErrorIs(t, d.Transfer(nil, nil), ErrNoBuffers)
	assert.ErrorIs(t, d.Transfer(make([]byte, 3), make([]byte, 4)), ErrBufferMismatch)
}

func TestOpenMissingDeviceFails(t *testing.T) {
	_, err := Open("/dev/spidev-none.9")
	assert.Error(t, err)
}
