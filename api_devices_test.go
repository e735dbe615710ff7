package fieldbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ctrlworks/fieldbus/modbus"
)

// startAPIServer serves the three gateway endpoints over registry on a
// free port and returns the base URL.
func startAPIServer(t *testing.T, registry map[string]*DeviceInfo) string {
	t.Helper()

	sugar := zap.NewExample().Sugar()

	router := mux.NewRouter()
	router.HandleFunc(DevicesEndpoint, HandleDevices(sugar, registry))
	router.HandleFunc(ReadEndpoint, HandleRead(sugar, registry))
	router.HandleFunc(WriteEndpoint, HandleWrite(sugar, registry))

	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatal(err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			t.Error(err)
		}
	}()

	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})

	time.Sleep(time.Millisecond * 200)

	return fmt.Sprintf("http://localhost:%d", port)
}

func TestHandleDevices(t *testing.T) {
	fresh := testDevice(t, "pump1", []PollBlock{
		{Function: modbus.FuncReadInputRegisters, Address: 0, Quantity: 2},
	})
	fresh.State.Update(Snapshot{
		Device: "pump1",
		At:     time.Now(),
		Blocks: []BlockResult{{Function: modbus.FuncReadInputRegisters, Quantity: 2, Registers: []uint16{0, 100}}},
	})

	silent := testDevice(t, "valve1", nil)

	registry := map[string]*DeviceInfo{
		"pump1":  fresh,
		"valve1": silent,
	}

	base := startAPIServer(t, registry)

	resp, err := http.Get(base + DevicesEndpoint)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var reports map[string]DeviceReport
	if err = json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		t.Fatal(err)
	}

	if assert.Len(t, reports, 2) {
		assert.True(t, reports["pump1"].Available)
		assert.NotNil(t, reports["pump1"].Snapshot)

		assert.False(t, reports["valve1"].Available)
		assert.Equal(t, ErrNoData.Error(), reports["valve1"].Error)
	}
}
