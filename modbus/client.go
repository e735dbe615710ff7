package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// Client provides register-level operations over a Transport with a
// per-request timeout and a bounded retry budget.
//
// Exceptions that cannot succeed on retry (illegal function, address or
// value) are returned immediately; timeouts, transport errors and busy
// responses are retried with exponential backoff until the budget is
// exhausted. A Client may be shared by every device on the same bus; the
// unit id is supplied per call.
type Client struct {
	transport Transport
	timeout   time.Duration
	retries   uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRequestTimeout bounds each attempt, overriding the 5s default.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryBudget sets how many times a failed attempt is retried.
func WithRetryBudget(n uint64) ClientOption {
	return func(c *Client) {
		c.retries = n
	}
}

// NewClient returns a Client issuing requests over t.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		timeout:   5 * time.Second,
		retries:   2,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ReadCoils reads quantity coils starting at addr from unit (FC 1).
func (c *Client) ReadCoils(ctx context.Context, unit byte, addr, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, FuncReadCoils, unit, addr, quantity)
}

// ReadDiscreteInputs reads quantity discrete inputs starting at addr (FC 2).
func (c *Client) ReadDiscreteInputs(ctx context.Context, unit byte, addr, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, FuncReadDiscreteInputs, unit, addr, quantity)
}

// ReadHoldingRegisters reads quantity holding registers starting at addr (FC 3).
func (c *Client) ReadHoldingRegisters(ctx context.Context, unit byte, addr, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, FuncReadHoldingRegisters, unit, addr, quantity)
}

// ReadInputRegisters reads quantity input registers starting at addr (FC 4).
func (c *Client) ReadInputRegisters(ctx context.Context, unit byte, addr, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, FuncReadInputRegisters, unit, addr, quantity)
}

// WriteSingleCoil writes one coil at addr (FC 5).
func (c *Client) WriteSingleCoil(ctx context.Context, unit byte, addr uint16, value bool) error {
	wire := uint16(0x0000)
	if value {
		wire = 0xFF00
	}

	req := newWriteSingleRequest(FuncWriteSingleCoil, addr, wire)

	resp, err := c.execute(ctx, unit, req)
	if err != nil || resp == nil {
		return err
	}

	return verifyWriteEcho(req, resp)
}

// WriteSingleRegister writes one holding register at addr (FC 6).
func (c *Client) WriteSingleRegister(ctx context.Context, unit byte, addr, value uint16) error {
	req := newWriteSingleRequest(FuncWriteSingleRegister, addr, value)

	resp, err := c.execute(ctx, unit, req)
	if err != nil || resp == nil {
		return err
	}

	return verifyWriteEcho(req, resp)
}

// WriteMultipleCoils writes len(values) coils starting at addr (FC 15).
func (c *Client) WriteMultipleCoils(ctx context.Context, unit byte, addr uint16, values []bool) error {
	if len(values) == 0 || len(values) > MaxWriteCoils {
		return fmt.Errorf("modbus: write of %d coils out of range", len(values))
	}

	resp, err := c.execute(ctx, unit, newWriteMultipleCoilsRequest(addr, values))
	if err != nil || resp == nil {
		return err
	}

	return verifyWriteAck(resp, addr, uint16(len(values)))
}

// WriteMultipleRegisters writes len(values) holding registers starting at addr (FC 16).
func (c *Client) WriteMultipleRegisters(ctx context.Context, unit byte, addr uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return fmt.Errorf("modbus: write of %d registers out of range", len(values))
	}

	resp, err := c.execute(ctx, unit, newWriteMultipleRegistersRequest(addr, values))
	if err != nil || resp == nil {
		return err
	}

	return verifyWriteAck(resp, addr, uint16(len(values)))
}

func (c *Client) readBits(ctx context.Context, fc, unit byte, addr, quantity uint16) ([]bool, error) {
	if quantity == 0 || quantity > MaxReadCoils {
		return nil, fmt.Errorf("modbus: read of %d bits out of range", quantity)
	}

	resp, err := c.execute(ctx, unit, newReadRequest(fc, addr, quantity))
	if err != nil {
		return nil, err
	}

	return parseBitsResponse(resp, quantity)
}

func (c *Client) readRegisters(ctx context.Context, fc, unit byte, addr, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadRegisters {
		return nil, fmt.Errorf("modbus: read of %d registers out of range", quantity)
	}

	resp, err := c.execute(ctx, unit, newReadRequest(fc, addr, quantity))
	if err != nil {
		return nil, err
	}

	return parseRegistersResponse(resp, quantity)
}

// execute runs one exchange under the retry policy. Reads to the
// broadcast unit are rejected because nothing answers them.
func (c *Client) execute(ctx context.Context, unit byte, req *PDU) (*PDU, error) {
	if unit == BroadcastUnit && req.FunctionCode <= FuncReadInputRegisters {
		return nil, fmt.Errorf("modbus: function %#02x may not be broadcast", req.FunctionCode)
	}

	var resp *PDU

	op := func() error {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error

		resp, err = c.transport.ExecuteRequest(actx, unit, req)
		if err != nil {
			return err
		}

		if resp == nil { // broadcast
			return nil
		}

		if err = responseError(req, resp); err != nil {
			if retryableException(err) {
				return err
			}

			return backoff.Permanent(err)
		}

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newAttemptBackOff(), c.retries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	return resp, nil
}

func newAttemptBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	return b
}

// retryableException reports whether the exception is worth another
// attempt: the unit said it is busy or still working, not that the
// request itself is wrong.
func retryableException(err error) bool {
	var exc *ExceptionError
	if !errors.As(err, &exc) {
		return false
	}

	return exc.Code == ExceptionServerDeviceBusy || exc.Code == ExceptionAcknowledge
}

func verifyWriteEcho(req, resp *PDU) error {
	if len(resp.Data) != len(req.Data) {
		return fmt.Errorf("modbus: short write echo")
	}

	for i := range req.Data {
		if resp.Data[i] != req.Data[i] {
			return fmt.Errorf("modbus: write echo mismatch")
		}
	}

	return nil
}

func verifyWriteAck(resp *PDU, addr, quantity uint16) error {
	if len(resp.Data) != 4 {
		return fmt.Errorf("modbus: short write acknowledgement")
	}

	if binary.BigEndian.Uint16(resp.Data[0:2]) != addr || binary.BigEndian.Uint16(resp.Data[2:4]) != quantity {
		return fmt.Errorf("modbus: write acknowledgement mismatch")
	}

	return nil
}
