package fieldbus

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleWriteSingleRegister(t *testing.T) {
	dev := testDevice(t, "pump1", nil)
	base := startAPIServer(t, map[string]*DeviceInfo{"pump1": dev})

	resp := postJSON(t, base+WriteEndpoint, WriteRequest{
		Device:    "pump1",
		Address:   5,
		Registers: []uint16{4242},
	})

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// read the register back over the same bus
	got, err := dev.Client.ReadHoldingRegisters(context.Background(), dev.Unit, 5, 1)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, []uint16{4242}, got)
}

func TestHandleWriteMultipleCoils(t *testing.T) {
	dev := testDevice(t, "pump1", nil)
	base := startAPIServer(t, map[string]*DeviceInfo{"pump1": dev})

	resp := postJSON(t, base+WriteEndpoint, WriteRequest{
		Device:  "pump1",
		Address: 8,
		Coils:   []bool{true, false, true},
	})

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHandleWriteNeitherSet(t *testing.T) {
	dev := testDevice(t, "pump1", nil)
	base := startAPIServer(t, map[string]*DeviceInfo{"pump1": dev})

	resp := postJSON(t, base+WriteEndpoint, WriteRequest{Device: "pump1", Address: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleWriteBothSet(t *testing.T) {
	dev := testDevice(t, "pump1", nil)
	base := startAPIServer(t, map[string]*DeviceInfo{"pump1": dev})

	resp := postJSON(t, base+WriteEndpoint, WriteRequest{
		Device:    "pump1",
		Registers: []uint16{1},
		Coils:     []bool{true},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleWriteUnknownDevice(t *testing.T) {
	base := startAPIServer(t, map[string]*DeviceInfo{})

	resp := postJSON(t, base+WriteEndpoint, WriteRequest{Device: "nope", Registers: []uint16{1}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
