//go:build linux
// +build linux

package canbus

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// socketCAN is a Bus over a raw AF_CAN socket bound to one interface.
type socketCAN struct {
	fd int

	mx     sync.Mutex
	closed bool
}

// DialOption configures the socket before it is bound.
type DialOption func(*dialConfig)

type dialConfig struct {
	recvTimeout time.Duration
	filters     []unix.CanFilter
}

// WithRecvTimeout arms SO_RCVTIMEO so Receive fails with ErrRecvTimeout
// instead of blocking forever.
func WithRecvTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) {
		c.recvTimeout = d
	}
}

// WithIDFilter installs a kernel-side CAN_RAW_FILTER passing only frames
// whose identifier matches id under mask.
func WithIDFilter(id, mask uint32) DialOption {
	return func(c *dialConfig) {
		c.filters = append(c.filters, unix.CanFilter{Id: id, Mask: mask})
	}
}

// Dial opens a raw SocketCAN socket on the named interface, e.g. "can0".
func Dial(ifname string, opts ...DialOption) (Bus, error) {
	var conf dialConfig

	for _, opt := range opts {
		opt(&conf)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %v", err)
	}

	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("canbus: interface %s: %v", ifname, err)
	}

	if len(conf.filters) > 0 {
		if err = unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, conf.filters); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("canbus: set filters: %v", err)
		}
	}

	if conf.recvTimeout > 0 {
		tv := unix.NsecToTimeval(conf.recvTimeout.Nanoseconds())
		if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("canbus: set receive timeout: %v", err)
		}
	}

	if err = unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %s: %v", ifname, err)
	}

	return &socketCAN{fd: fd}, nil
}

func (s *socketCAN) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return unix.Close(s.fd)
}

func (s *socketCAN) Send(f Frame) error {
	wire, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	for {
		n, err := unix.Write(s.fd, wire)

		switch err {
		case nil:
			if n != len(wire) {
				return fmt.Errorf("canbus: short write of %d bytes", n)
			}

			return nil
		case unix.EINTR:
			continue
		case unix.EBADF:
			return ErrBusClosed
		default:
			return fmt.Errorf("canbus: write: %v", err)
		}
	}
}

func (s *socketCAN) Receive() (Frame, error) {
	wire := make([]byte, frameWireLength)

	for {
		n, err := unix.Read(s.fd, wire)

		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return Frame{}, ErrRecvTimeout
		case unix.EBADF:
			return Frame{}, ErrBusClosed
		default:
			return Frame{}, fmt.Errorf("canbus: read: %v", err)
		}

		if n != frameWireLength {
			return Frame{}, fmt.Errorf("canbus: short read of %d bytes", n)
		}

		var f Frame
		if err := f.UnmarshalBinary(wire); err != nil {
			return Frame{}, err
		}

		return f, nil
	}
}
