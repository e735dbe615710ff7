//go:build linux
// +build linux

package serial

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

// Port is an open serial device. It implements io.ReadWriteCloser and
// supports read deadlines.
type Port struct {
	f           *os.File
	readTimeout time.Duration
}

// Open opens device (e.g. /dev/ttyUSB0) in raw mode with the given
// options. Defaults are 115200 8N1 with no flow control.
func Open(device string, opts ...Option) (*Port, error) {
	conf := config{baudRate: 115200}

	for _, opt := range opts {
		opt(&conf)
	}

	speed, ok := baudRates[conf.baudRate]
	if !ok {
		return nil, fmt.Errorf("serial: open %s: %w (%d)", device, ErrUnsupportedBaudRate, conf.baudRate)
	}

	// O_NONBLOCK keeps the open from waiting on DCD and gets the fd into
	// the runtime poller so deadlines work
	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %v", device, err)
	}

	if err := configureTermios(f, conf, speed); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serial: configure %s: %v", device, err)
	}

	return &Port{f: f, readTimeout: conf.readTimeout}, nil
}

func configureTermios(f *os.File, conf config, speed uint32) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}

	var terr error

	cerr := rc.Control(func(fd uintptr) {
		tio, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
		if err != nil {
			terr = err
			return
		}

		// raw mode: no line discipline processing in either direction
		tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
			unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
		tio.Oflag &^= unix.OPOST
		tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

		tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
		tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

		switch conf.parity {
		case ParityEven:
			tio.Cflag |= unix.PARENB
			tio.Iflag |= unix.INPCK
		case ParityOdd:
			tio.Cflag |= unix.PARENB | unix.PARODD
			tio.Iflag |= unix.INPCK
		}

		if conf.twoStopBits {
			tio.Cflag |= unix.CSTOPB
		}

		tio.Cflag &^= unix.CBAUD
		tio.Cflag |= speed
		tio.Ispeed = speed
		tio.Ospeed = speed

		// the poller handles timeouts; the driver should hand over
		// whatever it has as soon as it has anything
		tio.Cc[unix.VMIN] = 1
		tio.Cc[unix.VTIME] = 0

		if err := unix.IoctlSetTermios(int(fd), unix.TCSETS, tio); err != nil {
			terr = err
			return
		}

		// start clean
		terr = unix.IoctlSetInt(int(fd), unix.TCFLSH, unix.TCIOFLUSH)
	})

	if cerr != nil {
		return cerr
	}

	return terr
}

// Read reads available bytes, honoring the configured read timeout.
func (p *Port) Read(b []byte) (int, error) {
	if p.readTimeout > 0 {
		if err := p.f.SetReadDeadline(time.Now().Add(p.readTimeout)); err != nil {
			return 0, err
		}
	}

	return p.f.Read(b)
}

// Write writes b to the port.
func (p *Port) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// SetReadDeadline bounds future reads; it overrides any rolling read
// timeout for the next Read only.
func (p *Port) SetReadDeadline(t time.Time) error {
	if p.readTimeout > 0 {
		// explicit deadlines win over the rolling timeout
		p.readTimeout = 0
	}

	return p.f.SetReadDeadline(t)
}

// Flush discards unwritten output and unread input.
func (p *Port) Flush() error {
	rc, err := p.f.SyscallConn()
	if err != nil {
		return err
	}

	var terr error

	cerr := rc.Control(func(fd uintptr) {
		terr = unix.IoctlSetInt(int(fd), unix.TCFLSH, unix.TCIOFLUSH)
	})

	if cerr != nil {
		return cerr
	}

	return terr
}

// Close closes the device.
func (p *Port) Close() error {
	return p.f.Close()
}
