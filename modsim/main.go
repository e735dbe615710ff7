//go:build !test
// +build !test

// modsim simulates a Modbus TCP unit so the gateway can be exercised
// without hardware on the bench. A yaml profile seeds the register
// tables; input registers drift every second so poll snapshots change.
package main

import (
	"flag"
	"io/ioutil"
	"log"
	"math/rand"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ctrlworks/fieldbus/modbus"
)

type profile struct {
	Unit     byte              `yaml:"unit"`
	Coils    map[uint16]bool   `yaml:"coils"`
	Discrete map[uint16]bool   `yaml:"discrete_inputs"`
	Holding  map[uint16]uint16 `yaml:"holding_registers"`
	Input    map[uint16]uint16 `yaml:"input_registers"`

	// Drift lists input register addresses to wander by a small random
	// step each second, like a sensor would.
	Drift []uint16 `yaml:"drift"`
}

func loadProfile(path string) (profile, error) {
	var p profile

	if path == "" {
		return p, nil
	}

	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return p, err
	}

	err = yaml.Unmarshal(contents, &p)

	return p, err
}

func main() {
	addr := flag.String("addr", "localhost:5020", "address to listen on")
	profilePath := flag.String("profile", "", "yaml register profile; empty starts with zeroed tables")
	flag.Parse()

	p, err := loadProfile(*profilePath)
	if err != nil {
		log.Fatalf("load profile: %v", err)
	}

	bank := modbus.NewRegisterBank(256, 256, 512, 512)

	for a, v := range p.Coils {
		if err := bank.SetCoil(a, v); err != nil {
			log.Fatal(err)
		}
	}

	for a, v := range p.Discrete {
		if err := bank.SetDiscreteInput(a, v); err != nil {
			log.Fatal(err)
		}
	}

	for a, v := range p.Holding {
		if err := bank.SetHoldingRegister(a, v); err != nil {
			log.Fatal(err)
		}
	}

	for a, v := range p.Input {
		if err := bank.SetInputRegister(a, v); err != nil {
			log.Fatal(err)
		}
	}

	if len(p.Drift) > 0 {
		go drift(bank, p.Drift, p.Input)
	}

	var opts []modbus.ServerOption
	if p.Unit != 0 {
		opts = append(opts, modbus.WithServerUnitID(p.Unit))
	}

	log.Printf("serving unit %d on %s", p.Unit, *addr)

	srv := modbus.NewServer(bank, opts...)
	if err := srv.ListenAndServe(*addr); err != nil {
		log.Fatal(err)
	}
}

func drift(bank *modbus.RegisterBank, addrs []uint16, seed map[uint16]uint16) {
	values := make(map[uint16]uint16, len(addrs))
	for _, a := range addrs {
		values[a] = seed[a]
	}

	for range time.Tick(time.Second) {
		for _, a := range addrs {
			values[a] += uint16(rand.Intn(7)) - 3 // nolint:gosec // simulation jitter

			if err := bank.SetInputRegister(a, values[a]); err != nil {
				log.Fatal(err)
			}
		}
	}
}
