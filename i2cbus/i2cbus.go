// Package i2cbus talks to I2C peripherals through the Linux i2c-dev
// interface: plain read/write against a bound slave address, and combined
// write-then-read transactions via the I2C_RDWR ioctl so a register
// pointer write and the following read happen without a stop condition in
// between.
package i2cbus

import "errors"

// Max7BitAddr is the highest legal 7-bit slave address.
const Max7BitAddr = 0x7F

var (
	// ErrBadAddress is returned for addresses outside 7-bit space or
	// inside the reserved ranges.
	ErrBadAddress = errors.New("i2cbus: invalid slave address")

	// ErrNotSupported is returned when the adapter lacks full I2C
	// functionality (for example SMBus-only controllers).
	ErrNotSupported = errors.New("i2cbus: adapter does not support plain I2C transfers")
)

func validAddr(addr uint16) bool {
	// 0x00-0x07 and 0x78-0x7F are reserved by the spec
	return addr >= 0x08 && addr <= 0x77
}
