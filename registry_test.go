package fieldbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ctrlworks/fieldbus/modbus"
)

func TestBuildRegistry(t *testing.T) {
	conf := Configuration{
		Buses: map[string]busConf{
			"plant": {Transport: "tcp", Address: "localhost:5020"},
		},
		Devices: map[string]deviceConf{
			"pump1": {
				Bus:    "plant",
				Unit:   3,
				PollMS: 250,
				Blocks: []blockConf{{Function: modbus.FuncReadInputRegisters, Address: 0, Quantity: 8}},
			},
		},
	}

	clients := map[string]*modbus.Client{
		"plant": modbus.NewClient(localTransport{srv: modbus.NewServer(modbus.NewRegisterBank(8, 8, 8, 8))}),
	}

	registry, err := BuildRegistry(conf, clients)
	if err != nil {
		t.Fatal(err)
	}

	dev, ok := registry["pump1"]
	if !ok {
		t.Fatal("pump1 missing from registry")
	}

	assert.Equal(t, "plant", dev.Bus)
	assert.Equal(t, byte(3), dev.Unit)
	assert.Equal(t, time.Millisecond*250, dev.Period)
	assert.NotNil(t, dev.State)
	assert.Len(t, dev.Blocks, 1)
}

func TestBuildRegistryMissingClient(t *testing.T) {
	conf := Configuration{
		Devices: map[string]deviceConf{
			"pump1": {
				Bus:    "plant",
				Blocks: []blockConf{{Function: modbus.FuncReadCoils, Address: 0, Quantity: 1}},
			},
		},
	}

	_, err := BuildRegistry(conf, map[string]*modbus.Client{})
	assert.NotNil(t, err)
}

func TestBuildRegistryRejectsWriteBlocks(t *testing.T) {
	conf := Configuration{
		Devices: map[string]deviceConf{
			"pump1": {
				Bus:    "plant",
				Blocks: []blockConf{{Function: modbus.FuncWriteSingleCoil, Address: 0, Quantity: 1}},
			},
		},
	}

	clients := map[string]*modbus.Client{
		"plant": modbus.NewClient(localTransport{srv: modbus.NewServer(modbus.NewRegisterBank(8, 8, 8, 8))}),
	}

	_, err := BuildRegistry(conf, clients)
	assert.NotNil(t, err)
}
