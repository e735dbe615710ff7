package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackBitsRoundTrip(t *testing.T) {
	values := []bool{true, false, true, true, false, false, true, false, true, true}

	packed := packBits(values)

	assert.Len(t, packed, 2)
	assert.Equal(t, values, unpackBits(packed, uint16(len(values))))
}

func TestNewReadRequestLayout(t *testing.T) {
	req := newReadRequest(FuncReadHoldingRegisters, 0x006B, 3)

	assert.Equal(t, byte(FuncReadHoldingRegisters), req.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x6B, 0x00, 0x03}, req.Data)
}

func TestNewWriteMultipleRegistersRequestLayout(t *testing.T) {
	req := newWriteMultipleRegistersRequest(0x0001, []uint16{0x000A, 0x0102})

	assert.Equal(t, byte(FuncWriteMultipleRegisters), req.FunctionCode)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}, req.Data)
}

func TestResponseErrorMapsException(t *testing.T) {
	req := newReadRequest(FuncReadHoldingRegisters, 0, 1)
	resp := &PDU{FunctionCode: FuncReadHoldingRegisters | errFlag, Data: []byte{ExceptionIllegalDataAddress}}

	err := responseError(req, resp)

	var exc *ExceptionError
	if assert.ErrorAs(t, err, &exc) {
		assert.Equal(t, byte(ExceptionIllegalDataAddress), exc.Code)
		assert.Contains(t, exc.Error(), "illegal data address")
	}
}

func TestResponseErrorFunctionMismatch(t *testing.T) {
	req := newReadRequest(FuncReadHoldingRegisters, 0, 1)
	resp := &PDU{FunctionCode: FuncReadInputRegisters, Data: []byte{0x02, 0x00, 0x00}}

	assert.Error(t, responseError(req, resp))
}

func TestParseRegistersResponseBadCount(t *testing.T) {
	_, err := parseRegistersResponse(&PDU{FunctionCode: FuncReadHoldingRegisters, Data: []byte{0x04, 0x00, 0x01}}, 2)
	assert.Error(t, err)
}
