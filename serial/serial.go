// Package serial opens Linux serial ports in raw mode for fieldbus use,
// primarily as the line under the Modbus RTU transport.
//
// Ports are opened non-blocking and registered with the runtime poller,
// so Read and Write honor deadlines set with SetReadDeadline; a timed-out
// read fails with os.ErrDeadlineExceeded. Configuration uses functional
// options:
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(19200),
//	    serial.WithParity(serial.ParityEven),
//	)
package serial

import (
	"errors"
	"time"
)

// Parity selects the parity bit generation and checking mode.
type Parity int

// Parity modes. Modbus over serial line defaults to even parity.
const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// ErrUnsupportedBaudRate is returned for rates without a Bxxxx constant.
var ErrUnsupportedBaudRate = errors.New("serial: unsupported baud rate")

type config struct {
	baudRate    int
	parity      Parity
	twoStopBits bool
	readTimeout time.Duration
}

// Option configures a port at open time.
type Option func(*config)

// WithBaudRate sets the line speed; the default is 115200.
func WithBaudRate(rate int) Option {
	return func(c *config) {
		c.baudRate = rate
	}
}

// WithParity sets the parity mode; the default is none (8N1).
func WithParity(p Parity) Option {
	return func(c *config) {
		c.parity = p
	}
}

// WithTwoStopBits selects two stop bits instead of one.
func WithTwoStopBits() Option {
	return func(c *config) {
		c.twoStopBits = true
	}
}

// WithReadTimeout arms a rolling deadline applied before every Read.
// Without it reads block until data arrives or a deadline is set
// explicitly.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) {
		c.readTimeout = d
	}
}
