//go:build linux
// +build linux

package i2cbus

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// i2c-dev ioctl numbers and flags from linux/i2c-dev.h and linux/i2c.h;
// x/sys/unix does not carry the I2C set.
const (
	i2cSlave = 0x0703 // I2C_SLAVE
	i2cFuncs = 0x0705 // I2C_FUNCS
	i2cRdwr  = 0x0707 // I2C_RDWR

	i2cFuncI2C = 0x1 // I2C_FUNC_I2C
	i2cMsgRead = 0x1 // I2C_M_RD
)

// Device is one slave on one adapter, e.g. address 0x48 on /dev/i2c-1.
type Device struct {
	f    *os.File
	addr uint16
}

// Open binds to the slave at addr on the adapter device node.
func Open(device string, addr uint16) (*Device, error) {
	if !validAddr(addr) {
		return nil, fmt.Errorf("i2cbus: open %s: %v (%#02x)", device, ErrBadAddress, addr)
	}

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2cbus: open %s: %v", device, err)
	}

	fd := int(f.Fd())

	funcs, err := adapterFuncs(fd)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("i2cbus: query functionality of %s: %v", device, err)
	}

	if funcs&i2cFuncI2C == 0 {
		_ = f.Close()
		return nil, ErrNotSupported
	}

	if err := unix.IoctlSetInt(fd, i2cSlave, int(addr)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("i2cbus: bind slave %#02x on %s: %v", addr, device, err)
	}

	return &Device{f: f, addr: addr}, nil
}

// Addr returns the bound slave address.
func (d *Device) Addr() uint16 {
	return d.addr
}

// Read issues a single read transfer from the bound slave.
func (d *Device) Read(b []byte) (int, error) {
	return d.f.Read(b)
}

// Write issues a single write transfer to the bound slave.
func (d *Device) Write(b []byte) (int, error) {
	return d.f.Write(b)
}

// ReadReg writes the one-byte register pointer reg and reads len(buf)
// bytes back in one combined transaction.
func (d *Device) ReadReg(reg byte, buf []byte) error {
	return d.Tx([]byte{reg}, buf)
}

// i2cMsg mirrors struct i2c_msg from linux/i2c.h. Go's field alignment
// places Buf at offset 8 on 64-bit, matching the kernel layout.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

// i2cRdwrData mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h.
type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Tx performs a combined transaction: write w (if any), then read into r
// (if any), with a repeated start instead of a stop between the two.
func (d *Device) Tx(w, r []byte) error {
	var msgs [2]i2cMsg

	n := 0

	if len(w) > 0 {
		msgs[n] = i2cMsg{
			addr: d.addr,
			len:  uint16(len(w)),
			buf:  uintptr(unsafe.Pointer(&w[0])),
		}
		n++
	}

	if len(r) > 0 {
		msgs[n] = i2cMsg{
			addr:  d.addr,
			flags: i2cMsgRead,
			len:   uint16(len(r)),
			buf:   uintptr(unsafe.Pointer(&r[0])),
		}
		n++
	}

	if n == 0 {
		return nil
	}

	data := i2cRdwrData{
		msgs:  uintptr(unsafe.Pointer(&msgs[0])),
		nmsgs: uint32(n),
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), i2cRdwr, uintptr(unsafe.Pointer(&data)))

	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	runtime.KeepAlive(&msgs)

	if errno != 0 {
		return fmt.Errorf("i2cbus: combined transaction with %#02x: %v", d.addr, errno)
	}

	return nil
}

// Close releases the adapter fd.
func (d *Device) Close() error {
	return d.f.Close()
}

func adapterFuncs(fd int) (uint32, error) {
	var funcs uint32

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), i2cFuncs, uintptr(unsafe.Pointer(&funcs)))
	if errno != 0 {
		return 0, errno
	}

	return funcs, nil
}
