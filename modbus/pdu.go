package modbus

import (
	"encoding/binary"
	"fmt"
)

// PDU is the transport-independent protocol data unit: a function code
// followed by up to MaxPDULength-1 bytes of data.
type PDU struct {
	FunctionCode byte
	Data         []byte
}

// Length returns the encoded length of the PDU in bytes.
func (p *PDU) Length() int {
	return 1 + len(p.Data)
}

func newReadRequest(fc byte, addr, quantity uint16) *PDU {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &PDU{FunctionCode: fc, Data: data}
}

func newWriteSingleRequest(fc byte, addr, value uint16) *PDU {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &PDU{FunctionCode: fc, Data: data}
}

func newWriteMultipleRegistersRequest(addr uint16, values []uint16) *PDU {
	data := make([]byte, 5+len(values)*2)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(len(values) * 2)

	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+i*2:], v)
	}

	return &PDU{FunctionCode: FuncWriteMultipleRegisters, Data: data}
}

func newWriteMultipleCoilsRequest(addr uint16, values []bool) *PDU {
	packed := packBits(values)

	data := make([]byte, 5+len(packed))
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(len(packed))
	copy(data[5:], packed)

	return &PDU{FunctionCode: FuncWriteMultipleCoils, Data: data}
}

// responseError checks resp against the request that produced it and maps
// exception responses to an *ExceptionError.
func responseError(req, resp *PDU) error {
	if resp.FunctionCode == req.FunctionCode|errFlag {
		if len(resp.Data) < 1 {
			return fmt.Errorf("modbus: truncated exception response to function %#02x", req.FunctionCode)
		}

		return &ExceptionError{Function: req.FunctionCode, Code: resp.Data[0]}
	}

	if resp.FunctionCode != req.FunctionCode {
		return fmt.Errorf("modbus: response function %#02x does not match request function %#02x",
			resp.FunctionCode, req.FunctionCode)
	}

	return nil
}

func parseBitsResponse(resp *PDU, quantity uint16) ([]bool, error) {
	if len(resp.Data) < 1 {
		return nil, fmt.Errorf("modbus: empty bit read response")
	}

	count := int(resp.Data[0])
	if count != (int(quantity)+7)/8 || len(resp.Data) != 1+count {
		return nil, fmt.Errorf("modbus: bit read response byte count %d does not cover %d bits", count, quantity)
	}

	return unpackBits(resp.Data[1:], quantity), nil
}

func parseRegistersResponse(resp *PDU, quantity uint16) ([]uint16, error) {
	if len(resp.Data) < 1 {
		return nil, fmt.Errorf("modbus: empty register read response")
	}

	count := int(resp.Data[0])
	if count != int(quantity)*2 || len(resp.Data) != 1+count {
		return nil, fmt.Errorf("modbus: register read response byte count %d does not cover %d registers", count, quantity)
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(resp.Data[1+i*2:])
	}

	return values, nil
}

// packBits packs coil values LSB-first into bytes, final byte zero padded.
func packBits(values []bool) []byte {
	packed := make([]byte, (len(values)+7)/8)

	for i, v := range values {
		if v {
			packed[i/8] |= 1 << (uint(i) % 8)
		}
	}

	return packed
}

func unpackBits(packed []byte, quantity uint16) []bool {
	values := make([]bool, quantity)

	for i := range values {
		values[i] = packed[i/8]&(1<<(uint(i)%8)) != 0
	}

	return values
}
