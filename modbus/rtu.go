package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RTUTransport frames PDUs per the Modbus over Serial Line spec:
// [unit][function][data...][crc_lo][crc_hi]. One transaction occupies the
// line at a time, so exchanges are serialized with a mutex.
//
// The port is typically a *serial.Port but any io.ReadWriteCloser works,
// for example an RTU-over-TCP socket. If the port implements
// SetReadDeadline it is used to bound each exchange; otherwise reads are
// expected to fail with a timeout error on their own.
type RTUTransport struct {
	port    io.ReadWriteCloser
	timeout time.Duration

	mx sync.Mutex
}

// RTUOption configures an RTUTransport.
type RTUOption func(*RTUTransport)

// WithRTUResponseTimeout bounds the wait for a unit's response.
func WithRTUResponseTimeout(d time.Duration) RTUOption {
	return func(t *RTUTransport) {
		t.timeout = d
	}
}

// NewRTUTransport returns an RTUTransport exchanging frames over port.
func NewRTUTransport(port io.ReadWriteCloser, opts ...RTUOption) *RTUTransport {
	t := &RTUTransport{
		port:    port,
		timeout: DefaultResponseTimeout,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Close closes the underlying port.
func (t *RTUTransport) Close() error {
	return t.port.Close()
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// ExecuteRequest implements Transport.
func (t *RTUTransport) ExecuteRequest(ctx context.Context, unit byte, req *PDU) (*PDU, error) {
	if req.Length()+3 > MaxADULength {
		return nil, fmt.Errorf("modbus: request PDU of %d bytes exceeds RTU frame limit", req.Length())
	}

	t.mx.Lock()
	defer t.mx.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adu := make([]byte, 0, req.Length()+3)
	adu = append(adu, unit, req.FunctionCode)
	adu = append(adu, req.Data...)
	adu = appendCRC(adu)

	if _, err := t.port.Write(adu); err != nil {
		return nil, fmt.Errorf("modbus: write request: %v", err)
	}

	if unit == BroadcastUnit {
		// no unit answers a broadcast; give the line its turnaround time
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := t.port.(readDeadliner); ok {
		if err := d.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("modbus: set read deadline: %v", err)
		}
	}

	resp, err := t.readResponse(unit)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// readResponse reads one RTU frame addressed from unit. The frame length
// is derived from the function code, so a header is read first and the
// remainder sized from it.
func (t *RTUTransport) readResponse(unit byte) (*PDU, error) {
	header := make([]byte, 3)
	if err := t.readFull(header); err != nil {
		return nil, err
	}

	fc := header[1]

	var rest []byte

	switch {
	case fc&errFlag != 0:
		// [unit][fc|0x80][code] already read; CRC remains
		rest = make([]byte, 2)
	case fc == FuncReadCoils || fc == FuncReadDiscreteInputs ||
		fc == FuncReadHoldingRegisters || fc == FuncReadInputRegisters:
		// header[2] is the byte count
		rest = make([]byte, int(header[2])+2)
	case fc == FuncWriteSingleCoil || fc == FuncWriteSingleRegister ||
		fc == FuncWriteMultipleCoils || fc == FuncWriteMultipleRegisters:
		// fixed 8-byte response, 3 read so far
		rest = make([]byte, 5)
	default:
		return nil, fmt.Errorf("modbus: unexpected function %#02x in response", fc)
	}

	if err := t.readFull(rest); err != nil {
		return nil, err
	}

	adu := append(header, rest...)

	if !checkCRC(adu) {
		return nil, fmt.Errorf("modbus: response CRC mismatch")
	}

	if adu[0] != unit {
		return nil, fmt.Errorf("modbus: response from unit %d, expected %d", adu[0], unit)
	}

	return &PDU{FunctionCode: fc, Data: adu[2 : len(adu)-2]}, nil
}

func (t *RTUTransport) readFull(buf []byte) error {
	if _, err := io.ReadFull(t.port, buf); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ErrTimeout
		}

		if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
			return ErrTimeout
		}

		return fmt.Errorf("modbus: read response: %v", err)
	}

	return nil
}
