package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16CheckValue(t *testing.T) {
	// standard CRC-16/MODBUS check value
	assert.Equal(t, uint16(0x4B37), CRC16([]byte("123456789")))
}

func TestAppendAndCheckCRC(t *testing.T) {
	adu := appendCRC([]byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03})

	assert.Len(t, adu, 8)
	assert.True(t, checkCRC(adu))

	adu[2] ^= 0xFF

	assert.False(t, checkCRC(adu))
}

func TestCheckCRCShortFrame(t *testing.T) {
	assert.False(t, checkCRC([]byte{0x01}))
}
