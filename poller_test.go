package fieldbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ctrlworks/fieldbus/modbus"
)

// localTransport runs requests against an in-process server so poller
// tests never touch a socket.
type localTransport struct {
	srv *modbus.Server
}

func (lt localTransport) ExecuteRequest(_ context.Context, _ byte, req *modbus.PDU) (*modbus.PDU, error) {
	return lt.srv.ServePDU(req), nil
}

func (lt localTransport) Close() error { return nil }

type captureSink struct {
	mx    sync.Mutex
	snaps []Snapshot
}

func (cs *captureSink) PublishSnapshot(snap Snapshot) error {
	cs.mx.Lock()
	defer cs.mx.Unlock()

	cs.snaps = append(cs.snaps, snap)

	return nil
}

func (cs *captureSink) count() int {
	cs.mx.Lock()
	defer cs.mx.Unlock()

	return len(cs.snaps)
}

func (cs *captureSink) last() Snapshot {
	cs.mx.Lock()
	defer cs.mx.Unlock()

	return cs.snaps[len(cs.snaps)-1]
}

func testDevice(t *testing.T, name string, blocks []PollBlock) *DeviceInfo {
	t.Helper()

	bank := modbus.NewRegisterBank(64, 64, 64, 64)

	for addr := uint16(0); addr < 8; addr++ {
		if err := bank.SetInputRegister(addr, addr*100); err != nil {
			t.Fatal(err)
		}
	}

	if err := bank.SetCoil(2, true); err != nil {
		t.Fatal(err)
	}

	srv := modbus.NewServer(bank, modbus.WithServerLogger(zap.NewNop().Sugar()))

	return &DeviceInfo{
		Name:   name,
		Bus:    "bench",
		Unit:   1,
		Client: modbus.NewClient(localTransport{srv: srv}),
		Blocks: blocks,
		Period: time.Millisecond * 20,
		State:  NewDeviceState(),
	}
}

func TestPollerPublishes(t *testing.T) {
	dev := testDevice(t, "pump1", []PollBlock{
		{Function: modbus.FuncReadInputRegisters, Address: 0, Quantity: 8},
		{Function: modbus.FuncReadCoils, Address: 0, Quantity: 4},
	})

	sink := &captureSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewPoller(map[string]*DeviceInfo{"pump1": dev}, zap.NewNop().Sugar(), sink).Run(ctx)

	deadline := time.After(time.Second)

	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no snapshot published within 1s")
		case <-time.After(time.Millisecond * 10):
		}
	}

	snap := sink.last()
	assert.Equal(t, "pump1", snap.Device)
	assert.Empty(t, snap.Error)

	if assert.Len(t, snap.Blocks, 2) {
		assert.Equal(t, []uint16{0, 100, 200, 300, 400, 500, 600, 700}, snap.Blocks[0].Registers)
		assert.Equal(t, []bool{false, false, true, false}, snap.Blocks[1].Bits)
	}

	// the cached state carries the same snapshot
	cached, err := dev.State.Latest()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "pump1", cached.Device)
}

func TestPollerReportsDeviceErrors(t *testing.T) {
	// registers beyond the bank report an exception, which shows up as
	// the snapshot error instead of partial data
	dev := testDevice(t, "pump1", []PollBlock{
		{Function: modbus.FuncReadInputRegisters, Address: 0, Quantity: 8},
		{Function: modbus.FuncReadInputRegisters, Address: 1000, Quantity: 8},
	})

	sink := &captureSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewPoller(map[string]*DeviceInfo{"pump1": dev}, zap.NewNop().Sugar(), sink).Run(ctx)

	deadline := time.After(time.Second)

	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no snapshot published within 1s")
		case <-time.After(time.Millisecond * 10):
		}
	}

	snap := sink.last()
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, snap.Blocks)
}

func TestCurrentPeriodFollowsConfiguration(t *testing.T) {
	initial := _globalConfiguration

	defer func() { _globalConfiguration = initial }()

	dev := &DeviceInfo{Name: "pump1", Period: time.Second}

	// without a monitored configuration the registry period holds
	setGlobalConfiguration(nil)
	assert.Equal(t, time.Second, dev.currentPeriod())

	setGlobalConfiguration(&Configuration{
		Devices: map[string]deviceConf{
			"pump1": {PollMS: 50},
		},
	})
	assert.Equal(t, time.Millisecond*50, dev.currentPeriod())

	// a device edited out of the file keeps its registry period
	setGlobalConfiguration(&Configuration{})
	assert.Equal(t, time.Second, dev.currentPeriod())
}

func TestPollerStopsOnCancel(t *testing.T) {
	dev := testDevice(t, "pump1", []PollBlock{
		{Function: modbus.FuncReadInputRegisters, Address: 0, Quantity: 1},
	})

	sink := &captureSink{}

	ctx, cancel := context.WithCancel(context.Background())

	NewPoller(map[string]*DeviceInfo{"pump1": dev}, zap.NewNop().Sugar(), sink).Run(ctx)

	time.Sleep(time.Millisecond * 100)
	cancel()
	time.Sleep(time.Millisecond * 50)

	stopped := sink.count()

	time.Sleep(time.Millisecond * 100)
	assert.Equal(t, stopped, sink.count())
}
