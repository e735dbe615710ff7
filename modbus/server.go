package modbus

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// RegisterBank is the addressable data model of a Modbus unit: coils,
// discrete inputs, holding registers and input registers, each starting
// at address zero. It is safe for concurrent use, so a simulator can
// update input registers while a server reads them.
type RegisterBank struct {
	mx       sync.RWMutex
	coils    []bool
	discrete []bool
	holding  []uint16
	input    []uint16
}

// NewRegisterBank allocates a bank with the given table sizes.
func NewRegisterBank(coils, discrete, holding, input int) *RegisterBank {
	return &RegisterBank{
		coils:    make([]bool, coils),
		discrete: make([]bool, discrete),
		holding:  make([]uint16, holding),
		input:    make([]uint16, input),
	}
}

// SetInputRegister stores value at addr in the input register table.
func (b *RegisterBank) SetInputRegister(addr uint16, value uint16) error {
	b.mx.Lock()
	defer b.mx.Unlock()

	if int(addr) >= len(b.input) {
		return fmt.Errorf("modbus: input register %d out of range", addr)
	}

	b.input[addr] = value

	return nil
}

// SetHoldingRegister stores value at addr in the holding register table.
func (b *RegisterBank) SetHoldingRegister(addr uint16, value uint16) error {
	b.mx.Lock()
	defer b.mx.Unlock()

	if int(addr) >= len(b.holding) {
		return fmt.Errorf("modbus: holding register %d out of range", addr)
	}

	b.holding[addr] = value

	return nil
}

// HoldingRegister returns the holding register at addr.
func (b *RegisterBank) HoldingRegister(addr uint16) (uint16, error) {
	b.mx.RLock()
	defer b.mx.RUnlock()

	if int(addr) >= len(b.holding) {
		return 0, fmt.Errorf("modbus: holding register %d out of range", addr)
	}

	return b.holding[addr], nil
}

// SetDiscreteInput stores value at addr in the discrete input table.
func (b *RegisterBank) SetDiscreteInput(addr uint16, value bool) error {
	b.mx.Lock()
	defer b.mx.Unlock()

	if int(addr) >= len(b.discrete) {
		return fmt.Errorf("modbus: discrete input %d out of range", addr)
	}

	b.discrete[addr] = value

	return nil
}

// SetCoil stores value at addr in the coil table.
func (b *RegisterBank) SetCoil(addr uint16, value bool) error {
	b.mx.Lock()
	defer b.mx.Unlock()

	if int(addr) >= len(b.coils) {
		return fmt.Errorf("modbus: coil %d out of range", addr)
	}

	b.coils[addr] = value

	return nil
}

// Coil returns the coil at addr.
func (b *RegisterBank) Coil(addr uint16) (bool, error) {
	b.mx.RLock()
	defer b.mx.RUnlock()

	if int(addr) >= len(b.coils) {
		return false, fmt.Errorf("modbus: coil %d out of range", addr)
	}

	return b.coils[addr], nil
}

// Server services Modbus TCP requests against a RegisterBank. It backs
// the device simulator and in-process tests.
type Server struct {
	bank   *RegisterBank
	unit   byte // 0 accepts any unit id
	logger *zap.SugaredLogger

	mx sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger; the default discards nothing loudly
// via zap's example logger.
func WithServerLogger(logger *zap.SugaredLogger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerUnitID restricts the server to a single unit id; requests to
// other units are dropped per the serial line rules.
func WithServerUnitID(unit byte) ServerOption {
	return func(s *Server) {
		s.unit = unit
	}
}

// NewServer returns a Server answering from bank.
func NewServer(bank *RegisterBank, opts ...ServerOption) *Server {
	s := &Server{bank: bank}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = zap.NewExample().Sugar()
	}

	return s
}

// Serve accepts connections on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mx.Lock()
	s.ln = ln
	s.mx.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("modbus: listen %s: %v", addr, err)
	}

	return s.Serve(ln)
}

// Close stops the listener and waits for in-flight connections.
func (s *Server) Close() error {
	s.mx.Lock()
	ln := s.ln
	s.mx.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.wg.Wait()

	return err
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	cl := s.logger.With("remote", conn.RemoteAddr().String())

	header := make([]byte, mbapHeaderLength)

	for {
		if _, err := readFullConn(conn, header); err != nil {
			return
		}

		length := int(binary.BigEndian.Uint16(header[4:6]))
		if length < 2 || length > MaxPDULength+1 {
			cl.Warnw("dropping connection with invalid MBAP length", "length", length)
			return
		}

		body := make([]byte, length-1)
		if _, err := readFullConn(conn, body); err != nil {
			return
		}

		unit := header[6]
		if s.unit != 0 && unit != s.unit && unit != BroadcastUnit {
			continue
		}

		resp := s.ServePDU(&PDU{FunctionCode: body[0], Data: body[1:]})

		if unit == BroadcastUnit {
			// broadcasts are executed but never answered
			continue
		}

		frame := make([]byte, mbapHeaderLength+resp.Length())
		copy(frame[0:2], header[0:2]) // echo transaction id
		binary.BigEndian.PutUint16(frame[4:6], uint16(resp.Length()+1))
		frame[6] = unit
		frame[7] = resp.FunctionCode
		copy(frame[8:], resp.Data)

		if _, err := conn.Write(frame); err != nil {
			cl.Debugw("write response", "error", err)
			return
		}
	}
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0

	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}

		total += n
	}

	return total, nil
}

// ServePDU executes one request against the bank and builds the response,
// exceptions included. Exported so tests and in-process transports can
// drive the server without a socket.
func (s *Server) ServePDU(req *PDU) *PDU {
	resp, exc := s.dispatch(req)
	if exc != 0 {
		return &PDU{FunctionCode: req.FunctionCode | errFlag, Data: []byte{exc}}
	}

	return resp
}

// nolint:gocyclo // one arm per function code
func (s *Server) dispatch(req *PDU) (*PDU, byte) {
	switch req.FunctionCode {
	case FuncReadCoils:
		return s.readBits(req, true)
	case FuncReadDiscreteInputs:
		return s.readBits(req, false)
	case FuncReadHoldingRegisters:
		return s.readRegisters(req, true)
	case FuncReadInputRegisters:
		return s.readRegisters(req, false)
	case FuncWriteSingleCoil:
		return s.writeSingleCoil(req)
	case FuncWriteSingleRegister:
		return s.writeSingleRegister(req)
	case FuncWriteMultipleCoils:
		return s.writeMultipleCoils(req)
	case FuncWriteMultipleRegisters:
		return s.writeMultipleRegisters(req)
	default:
		return nil, ExceptionIllegalFunction
	}
}

func (s *Server) readBits(req *PDU, coils bool) (*PDU, byte) {
	if len(req.Data) != 4 {
		return nil, ExceptionIllegalDataValue
	}

	addr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity == 0 || quantity > MaxReadCoils {
		return nil, ExceptionIllegalDataValue
	}

	s.bank.mx.RLock()
	defer s.bank.mx.RUnlock()

	table := s.bank.discrete
	if coils {
		table = s.bank.coils
	}

	if int(addr)+int(quantity) > len(table) {
		return nil, ExceptionIllegalDataAddress
	}

	packed := packBits(table[addr : addr+quantity])

	data := make([]byte, 1+len(packed))
	data[0] = byte(len(packed))
	copy(data[1:], packed)

	return &PDU{FunctionCode: req.FunctionCode, Data: data}, 0
}

func (s *Server) readRegisters(req *PDU, holding bool) (*PDU, byte) {
	if len(req.Data) != 4 {
		return nil, ExceptionIllegalDataValue
	}

	addr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity == 0 || quantity > MaxReadRegisters {
		return nil, ExceptionIllegalDataValue
	}

	s.bank.mx.RLock()
	defer s.bank.mx.RUnlock()

	table := s.bank.input
	if holding {
		table = s.bank.holding
	}

	if int(addr)+int(quantity) > len(table) {
		return nil, ExceptionIllegalDataAddress
	}

	data := make([]byte, 1+int(quantity)*2)
	data[0] = byte(quantity * 2)

	for i, v := range table[addr : addr+quantity] {
		binary.BigEndian.PutUint16(data[1+i*2:], v)
	}

	return &PDU{FunctionCode: req.FunctionCode, Data: data}, 0
}

func (s *Server) writeSingleCoil(req *PDU) (*PDU, byte) {
	if len(req.Data) != 4 {
		return nil, ExceptionIllegalDataValue
	}

	addr := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if value != 0x0000 && value != 0xFF00 {
		return nil, ExceptionIllegalDataValue
	}

	if err := s.bank.SetCoil(addr, value == 0xFF00); err != nil {
		return nil, ExceptionIllegalDataAddress
	}

	// response echoes the request
	return &PDU{FunctionCode: req.FunctionCode, Data: req.Data}, 0
}

func (s *Server) writeSingleRegister(req *PDU) (*PDU, byte) {
	if len(req.Data) != 4 {
		return nil, ExceptionIllegalDataValue
	}

	addr := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.bank.SetHoldingRegister(addr, value); err != nil {
		return nil, ExceptionIllegalDataAddress
	}

	return &PDU{FunctionCode: req.FunctionCode, Data: req.Data}, 0
}

func (s *Server) writeMultipleCoils(req *PDU) (*PDU, byte) {
	if len(req.Data) < 5 {
		return nil, ExceptionIllegalDataValue
	}

	addr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	count := int(req.Data[4])

	if quantity == 0 || quantity > MaxWriteCoils || count != (int(quantity)+7)/8 || len(req.Data) != 5+count {
		return nil, ExceptionIllegalDataValue
	}

	values := unpackBits(req.Data[5:], quantity)

	s.bank.mx.Lock()
	defer s.bank.mx.Unlock()

	if int(addr)+int(quantity) > len(s.bank.coils) {
		return nil, ExceptionIllegalDataAddress
	}

	copy(s.bank.coils[addr:], values)

	return &PDU{FunctionCode: req.FunctionCode, Data: req.Data[0:4]}, 0
}

func (s *Server) writeMultipleRegisters(req *PDU) (*PDU, byte) {
	if len(req.Data) < 5 {
		return nil, ExceptionIllegalDataValue
	}

	addr := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	count := int(req.Data[4])

	if quantity == 0 || quantity > MaxWriteRegisters || count != int(quantity)*2 || len(req.Data) != 5+count {
		return nil, ExceptionIllegalDataValue
	}

	s.bank.mx.Lock()
	defer s.bank.mx.Unlock()

	if int(addr)+int(quantity) > len(s.bank.holding) {
		return nil, ExceptionIllegalDataAddress
	}

	for i := 0; i < int(quantity); i++ {
		s.bank.holding[int(addr)+i] = binary.BigEndian.Uint16(req.Data[5+i*2:])
	}

	return &PDU{FunctionCode: req.FunctionCode, Data: req.Data[0:4]}, 0
}
