//go:build linux
// +build linux

package spibus

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl numbers, built the way _IOW/_IOR('k', nr, size) builds
// them; x/sys/unix does not carry the SPI set.
const (
	iocWrite = 1
	iocRead  = 2

	spiIocMagic = 'k'
)

func spiIoc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | spiIocMagic<<8 | nr
}

var (
	spiIocWrMode        = spiIoc(iocWrite, 1, 1)
	spiIocWrBitsPerWord = spiIoc(iocWrite, 3, 1)
	spiIocWrMaxSpeedHz  = spiIoc(iocWrite, 4, 4)
)

// spiIocMessage is SPI_IOC_MESSAGE(n): n transfer structs of 32 bytes.
func spiIocMessage(n uintptr) uintptr {
	return spiIoc(iocWrite, 0, n*spiTransferSize)
}

// spiTransfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
type spiTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

const spiTransferSize = unsafe.Sizeof(spiTransfer{})

// Device is an open spidev node, e.g. /dev/spidev0.0.
type Device struct {
	f       *os.File
	speedHz uint32
	bits    uint8
}

type config struct {
	mode    Mode
	speedHz uint32
	bits    uint8
}

// Option configures the device at open time.
type Option func(*config)

// WithMode selects the clock mode; the default is Mode0.
func WithMode(m Mode) Option {
	return func(c *config) {
		c.mode = m
	}
}

// WithMaxSpeed sets the transfer clock in Hz; the default is 500 kHz.
func WithMaxSpeed(hz uint32) Option {
	return func(c *config) {
		c.speedHz = hz
	}
}

// WithBitsPerWord sets the word size; the default is 8.
func WithBitsPerWord(bits uint8) Option {
	return func(c *config) {
		c.bits = bits
	}
}

// Open opens and configures a spidev node.
func Open(device string, opts ...Option) (*Device, error) {
	conf := config{speedHz: 500000, bits: 8}

	for _, opt := range opts {
		opt(&conf)
	}

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spibus: open %s: %v", device, err)
	}

	fd := f.Fd()

	mode := uint8(conf.mode)
	if err := ioctlPtr(fd, spiIocWrMode, unsafe.Pointer(&mode)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spibus: set mode on %s: %v", device, err)
	}

	bits := conf.bits
	if err := ioctlPtr(fd, spiIocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spibus: set bits per word on %s: %v", device, err)
	}

	speed := conf.speedHz
	if err := ioctlPtr(fd, spiIocWrMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spibus: set max speed on %s: %v", device, err)
	}

	return &Device{f: f, speedHz: conf.speedHz, bits: conf.bits}, nil
}

// Transfer clocks one full-duplex transfer: tx bytes out while rx bytes
// come in. Either buffer may be nil for a half-duplex exchange; when both
// are set their lengths must match.
func (d *Device) Transfer(tx, rx []byte) error {
	length := len(tx)

	switch {
	case len(tx) == 0 && len(rx) == 0:
		return ErrNoBuffers
	case len(tx) == 0:
		length = len(rx)
	case len(rx) != 0 && len(rx) != len(tx):
		return ErrBufferMismatch
	}

	tr := spiTransfer{
		length:      uint32(length),
		speedHz:     d.speedHz,
		bitsPerWord: d.bits,
	}

	if len(tx) > 0 {
		tr.txBuf = uint64(uintptr(unsafe.Pointer(&tx[0])))
	}

	if len(rx) > 0 {
		tr.rxBuf = uint64(uintptr(unsafe.Pointer(&rx[0])))
	}

	err := ioctlPtr(d.f.Fd(), spiIocMessage(1), unsafe.Pointer(&tr))

	runtime.KeepAlive(tx)
	runtime.KeepAlive(rx)

	if err != nil {
		return fmt.Errorf("spibus: transfer of %d bytes: %v", length, err)
	}

	return nil
}

// Close releases the device node.
func (d *Device) Close() error {
	return d.f.Close()
}

func ioctlPtr(fd, req uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg)); errno != 0 {
		return errno
	}

	return nil
}
