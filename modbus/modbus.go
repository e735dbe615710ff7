// Package modbus implements the Modbus application protocol over serial
// RTU and TCP transports.
//
// The wire formats follow the specifications published by the Modbus
// Organization: Modbus Application Protocol v1.1b, Modbus over Serial
// Line v1.02 and Modbus Messaging on TCP/IP v1.0b.
//
// The package is split into three layers. PDU is the transport-independent
// function-code-plus-data unit. Transport frames PDUs for a particular
// medium (RTUTransport, TCPTransport) and moves them to a unit. Client
// binds register-level operations, per-request timeouts and a retry budget
// on top of any Transport.
package modbus

import "fmt"

// Public function codes serviced by Client and Server.
const (
	FuncReadCoils              = 0x01
	FuncReadDiscreteInputs     = 0x02
	FuncReadHoldingRegisters   = 0x03
	FuncReadInputRegisters     = 0x04
	FuncWriteSingleCoil        = 0x05
	FuncWriteSingleRegister    = 0x06
	FuncWriteMultipleCoils     = 0x0F
	FuncWriteMultipleRegisters = 0x10
)

// Exception codes per the application protocol spec, section 7.
const (
	ExceptionIllegalFunction     = 0x01
	ExceptionIllegalDataAddress  = 0x02
	ExceptionIllegalDataValue    = 0x03
	ExceptionServerDeviceFailure = 0x04
	ExceptionAcknowledge         = 0x05
	ExceptionServerDeviceBusy    = 0x06
)

// Quantity limits per the application protocol spec, section 6.
const (
	MaxReadCoils      = 2000
	MaxReadRegisters  = 125
	MaxWriteCoils     = 1968
	MaxWriteRegisters = 123
)

// Frame size limits per the serial line spec, section 2.5.1.
const (
	MaxADULength = 256
	MaxPDULength = 253
)

// errFlag is OR'd into the function code of an exception response.
const errFlag = 0x80

// ExceptionError is an exception response returned by the server.
type ExceptionError struct {
	Function byte // function code of the offending request
	Code     byte // exception code
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception %#02x (%s) on function %#02x", e.Code, exceptionName(e.Code), e.Function)
}

func exceptionName(code byte) string {
	switch code {
	case ExceptionIllegalFunction:
		return "illegal function"
	case ExceptionIllegalDataAddress:
		return "illegal data address"
	case ExceptionIllegalDataValue:
		return "illegal data value"
	case ExceptionServerDeviceFailure:
		return "server device failure"
	case ExceptionAcknowledge:
		return "acknowledge"
	case ExceptionServerDeviceBusy:
		return "server device busy"
	default:
		return "unknown"
	}
}
