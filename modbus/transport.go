package modbus

import (
	"context"
	"errors"
	"time"
)

// Transport frames PDUs for a particular medium and executes a
// request/response exchange with the addressed unit.
//
// Implementations are safe for use by multiple goroutines. RTUTransport
// serializes exchanges because a serial line carries one transaction at a
// time; TCPTransport correlates concurrent outstanding requests by
// transaction identifier.
type Transport interface {
	// ExecuteRequest sends req to unit and waits for the matching
	// response. A broadcast write (unit 0) returns a nil PDU and nil
	// error once the request is on the wire.
	ExecuteRequest(ctx context.Context, unit byte, req *PDU) (*PDU, error)
	Close() error
}

var (
	// ErrTimeout is returned when the unit does not answer within the
	// transport's response timeout.
	ErrTimeout = errors.New("modbus: response timed out")

	// ErrTransportClosed is returned for exchanges attempted or in
	// flight after the transport shut down.
	ErrTransportClosed = errors.New("modbus: transport closed")
)

// DefaultResponseTimeout bounds a single request/response exchange unless
// overridden by a transport option.
const DefaultResponseTimeout = time.Second

// BroadcastUnit addresses every unit on the bus; only writes are legal and
// no unit answers.
const BroadcastUnit = 0
