// Package spibus performs full-duplex SPI transfers through the Linux
// spidev interface (SPI_IOC_MESSAGE).
package spibus

import "errors"

// Mode is the SPI clock polarity/phase mode, 0 through 3.
type Mode uint8

// SPI modes; the bit layout matches linux/spi/spidev.h (CPHA=1, CPOL=2).
const (
	Mode0 Mode = 0
	Mode1 Mode = 1
	Mode2 Mode = 2
	Mode3 Mode = 3
)

var (
	// ErrBufferMismatch is returned when both transfer buffers are set
	// but differ in length; SPI shifts exactly one bit out per bit in.
	ErrBufferMismatch = errors.New("spibus: tx and rx buffer lengths differ")

	// ErrNoBuffers is returned when a transfer has nothing to move.
	ErrNoBuffers = errors.New("spibus: transfer needs a tx or rx buffer")
)
