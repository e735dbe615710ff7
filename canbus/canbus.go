// Package canbus provides classical CAN (ISO 11898) framing and access to
// Linux SocketCAN interfaces, plus an in-memory loopback bus and a frame
// multiplexer for filtered consumption.
package canbus

import "errors"

// Bus moves CAN frames. Implementations: the SocketCAN interface returned
// by Dial (linux) and the endpoints of a Loopback.
type Bus interface {
	// Send queues one frame for transmission.
	Send(Frame) error

	// Receive blocks until a frame arrives, the receive timeout elapses
	// (ErrRecvTimeout) or the bus closes (ErrBusClosed).
	Receive() (Frame, error)

	Close() error
}

var (
	// ErrBusClosed is returned by operations on a closed bus.
	ErrBusClosed = errors.New("canbus: bus closed")

	// ErrRecvTimeout is returned by Receive when a receive timeout is
	// configured and no frame arrived in time.
	ErrRecvTimeout = errors.New("canbus: receive timed out")
)
