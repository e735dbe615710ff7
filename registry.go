// Package fieldbus is an embedded-Linux fieldbus gateway: it polls
// Modbus devices over serial RTU and TCP buses, caches their state,
// serves it over an HTTP API, a mangos stream and an MQTT bridge, and
// snoops CAN traffic alongside.
package fieldbus

import (
	"fmt"
	"time"

	"github.com/ctrlworks/fieldbus/modbus"
)

// PollBlock describes one read geometry on a device: which function
// code, where, and how much.
type PollBlock struct {
	Function byte
	Address  uint16
	Quantity uint16
}

// DeviceInfo ties one polled device to its bus client and cached state.
type DeviceInfo struct {
	Name   string
	Bus    string
	Unit   byte
	Client *modbus.Client
	Blocks []PollBlock
	Period time.Duration
	State  *DeviceState
}

// BuildRegistry assembles the device registry from the configuration and
// the already-opened per-bus clients.
func BuildRegistry(conf Configuration, clients map[string]*modbus.Client) (map[string]*DeviceInfo, error) {
	registry := make(map[string]*DeviceInfo, len(conf.Devices))

	for name, dev := range conf.Devices {
		client, ok := clients[dev.Bus]
		if !ok {
			return nil, fmt.Errorf("device %s: no client for bus %q", name, dev.Bus)
		}

		blocks := make([]PollBlock, len(dev.Blocks))
		for i, b := range dev.Blocks {
			switch b.Function {
			case modbus.FuncReadCoils, modbus.FuncReadDiscreteInputs,
				modbus.FuncReadHoldingRegisters, modbus.FuncReadInputRegisters:
			default:
				return nil, fmt.Errorf("device %s: block %d: function %#02x is not a read", name, i, b.Function)
			}

			blocks[i] = PollBlock{Function: b.Function, Address: b.Address, Quantity: b.Quantity}
		}

		registry[name] = &DeviceInfo{
			Name:   name,
			Bus:    dev.Bus,
			Unit:   dev.Unit,
			Client: client,
			Blocks: blocks,
			Period: dev.pollPeriod(),
			State:  NewDeviceState(),
		}
	}

	return registry, nil
}
