package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServePDUReadWriteRegisters(t *testing.T) {
	bank := NewRegisterBank(0, 0, 16, 0)
	srv := NewServer(bank)

	resp := srv.ServePDU(newWriteMultipleRegistersRequest(4, []uint16{0x0A0B, 0x0C0D}))
	require.Equal(t, byte(FuncWriteMultipleRegisters), resp.FunctionCode)

	resp = srv.ServePDU(newReadRequest(FuncReadHoldingRegisters, 4, 2))
	values, err := parseRegistersResponse(resp, 2)

	assert.NoError(t, err)
	assert.Equal(t, []uint16{0x0A0B, 0x0C0D}, values)
}

func TestServePDUIllegalFunction(t *testing.T) {
	srv := NewServer(NewRegisterBank(1, 1, 1, 1))

	resp := srv.ServePDU(&PDU{FunctionCode: 0x2B})

	assert.Equal(t, byte(0x2B|errFlag), resp.FunctionCode)
	assert.Equal(t, []byte{ExceptionIllegalFunction}, resp.Data)
}

func TestServePDUIllegalDataAddress(t *testing.T) {
	srv := NewServer(NewRegisterBank(8, 8, 8, 8))

	resp := srv.ServePDU(newReadRequest(FuncReadInputRegisters, 6, 4))

	assert.Equal(t, byte(FuncReadInputRegisters|errFlag), resp.FunctionCode)
	assert.Equal(t, []byte{ExceptionIllegalDataAddress}, resp.Data)
}

func TestServePDUWriteSingleCoilValueCheck(t *testing.T) {
	srv := NewServer(NewRegisterBank(8, 0, 0, 0))

	resp := srv.ServePDU(newWriteSingleRequest(FuncWriteSingleCoil, 0, 0x1234))

	assert.Equal(t, []byte{ExceptionIllegalDataValue}, resp.Data)
}

func TestServerEndToEndWithClient(t *testing.T) {
	bank := NewRegisterBank(16, 16, 16, 16)
	require.NoError(t, bank.SetInputRegister(0, 451))
	require.NoError(t, bank.SetDiscreteInput(3, true))

	_, addr := startTestServer(t, bank)

	tr, err := DialTCP(addr)
	require.NoError(t, err)

	c := NewClient(tr)

	defer func() {
		_ = c.Close()
	}()

	ctx := context.Background()

	values, err := c.ReadInputRegisters(ctx, 1, 0, 1)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{451}, values)

	bits, err := c.ReadDiscreteInputs(ctx, 1, 0, 4)
	assert.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true}, bits)

	assert.NoError(t, c.WriteMultipleCoils(ctx, 1, 0, []bool{true, false, true}))

	coils, err := c.ReadCoils(ctx, 1, 0, 3)
	assert.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, coils)

	assert.NoError(t, c.WriteSingleRegister(ctx, 1, 9, 0xCAFE))

	got, err := bank.HoldingRegister(9)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0xCAFE), got)
}

func TestServerRestrictedUnitID(t *testing.T) {
	bank := NewRegisterBank(0, 0, 4, 0)

	_, addr := startTestServer(t, bank, WithServerUnitID(9))

	tr, err := DialTCP(addr, WithTCPResponseTimeout(100*time.Millisecond))
	require.NoError(t, err)

	defer func() {
		_ = tr.Close()
	}()

	// wrong unit is silently dropped
	_, err = tr.ExecuteRequest(context.Background(), 3, newReadRequest(FuncReadHoldingRegisters, 0, 1))
	assert.ErrorIs(t, err, ErrTimeout)

	// right unit answers
	resp, err := tr.ExecuteRequest(context.Background(), 9, newReadRequest(FuncReadHoldingRegisters, 0, 1))
	assert.NoError(t, err)
	assert.Equal(t, byte(FuncReadHoldingRegisters), resp.FunctionCode)
}
