package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// mbapHeaderLength is the fixed MBAP prefix: transaction id (2),
// protocol id (2), length (2), unit id (1).
const mbapHeaderLength = 7

// TCPTransport frames PDUs per the Modbus Messaging on TCP/IP spec. Each
// request carries a transaction identifier, so any number of requests may
// be outstanding on the connection at once; a background reader correlates
// responses to waiters by identifier and discards stale ones.
type TCPTransport struct {
	conn    net.Conn
	timeout time.Duration

	wmx sync.Mutex // serializes writes to conn

	mx      sync.Mutex
	pending map[uint16]chan *PDU
	nextTID uint16
	done    chan struct{}
	err     error
}

// TCPOption configures a TCPTransport.
type TCPOption func(*TCPTransport)

// WithTCPResponseTimeout bounds the wait for each response.
func WithTCPResponseTimeout(d time.Duration) TCPOption {
	return func(t *TCPTransport) {
		t.timeout = d
	}
}

// DialTCP connects to a Modbus TCP unit at addr (host:port).
func DialTCP(addr string, opts ...TCPOption) (*TCPTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("modbus: dial %s: %v", addr, err)
	}

	return NewTCPTransport(conn, opts...), nil
}

// NewTCPTransport wraps an established connection and starts the response
// reader.
func NewTCPTransport(conn net.Conn, opts ...TCPOption) *TCPTransport {
	t := &TCPTransport{
		conn:    conn,
		timeout: DefaultResponseTimeout,
		pending: make(map[uint16]chan *PDU),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(t)
	}

	go t.readLoop()

	return t
}

// Close shuts the connection down and fails all in-flight exchanges with
// ErrTransportClosed.
func (t *TCPTransport) Close() error {
	t.fail(ErrTransportClosed)
	return t.conn.Close()
}

// ExecuteRequest implements Transport.
func (t *TCPTransport) ExecuteRequest(ctx context.Context, unit byte, req *PDU) (*PDU, error) {
	if req.Length() > MaxPDULength {
		return nil, fmt.Errorf("modbus: request PDU of %d bytes exceeds limit", req.Length())
	}

	tid, ch, err := t.register()
	if err != nil {
		return nil, err
	}

	defer t.deregister(tid)

	frame := make([]byte, mbapHeaderLength+req.Length())
	binary.BigEndian.PutUint16(frame[0:2], tid)
	// protocol id stays zero
	binary.BigEndian.PutUint16(frame[4:6], uint16(req.Length()+1))
	frame[6] = unit
	frame[7] = req.FunctionCode
	copy(frame[8:], req.Data)

	t.wmx.Lock()
	_, werr := t.conn.Write(frame)
	t.wmx.Unlock()

	if werr != nil {
		return nil, fmt.Errorf("modbus: write request: %v", werr)
	}

	if unit == BroadcastUnit {
		return nil, nil
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, t.closeErr()
	}
}

func (t *TCPTransport) register() (uint16, chan *PDU, error) {
	t.mx.Lock()
	defer t.mx.Unlock()

	select {
	case <-t.done:
		return 0, nil, t.err
	default:
	}

	// find a free transaction id; collisions only matter with 65k
	// outstanding requests but skip them anyway
	for {
		t.nextTID++
		if _, busy := t.pending[t.nextTID]; !busy {
			break
		}
	}

	ch := make(chan *PDU, 1)
	t.pending[t.nextTID] = ch

	return t.nextTID, ch, nil
}

func (t *TCPTransport) deregister(tid uint16) {
	t.mx.Lock()
	delete(t.pending, tid)
	t.mx.Unlock()
}

func (t *TCPTransport) closeErr() error {
	t.mx.Lock()
	defer t.mx.Unlock()

	return t.err
}

func (t *TCPTransport) fail(err error) {
	t.mx.Lock()
	defer t.mx.Unlock()

	select {
	case <-t.done:
		return
	default:
	}

	t.err = err
	close(t.done)
}

func (t *TCPTransport) readLoop() {
	for {
		tid, pdu, err := readTCPFrame(t.conn)
		if err != nil {
			t.fail(ErrTransportClosed)
			return
		}

		t.mx.Lock()
		ch, ok := t.pending[tid]
		t.mx.Unlock()

		if !ok {
			// stale response to a request that already timed out
			continue
		}

		select {
		case ch <- pdu:
		default:
		}
	}
}

// readTCPFrame reads one MBAP-framed PDU and returns its transaction id.
func readTCPFrame(r io.Reader) (uint16, *PDU, error) {
	header := make([]byte, mbapHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	tid := binary.BigEndian.Uint16(header[0:2])

	if pid := binary.BigEndian.Uint16(header[2:4]); pid != 0 {
		return 0, nil, fmt.Errorf("modbus: unexpected protocol id %d", pid)
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || length > MaxPDULength+1 {
		return 0, nil, fmt.Errorf("modbus: invalid MBAP length %d", length)
	}

	body := make([]byte, length-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	return tid, &PDU{FunctionCode: body[0], Data: body[1:]}, nil
}
