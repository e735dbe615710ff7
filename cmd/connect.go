package main

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/ctrlworks/fieldbus"
	"github.com/ctrlworks/fieldbus/modbus"
	"github.com/ctrlworks/fieldbus/serial"
)

// connectBuses opens every configured bus and wraps it in a shared
// client. TCP dials are retried with exponential backoff so the gateway
// survives coming up before its devices do.
func connectBuses(sugar *zap.SugaredLogger, conf fieldbus.Configuration) (map[string]*modbus.Client, error) {
	clients := make(map[string]*modbus.Client, len(conf.Buses))

	for name, bus := range conf.Buses {
		cl := sugar.With("bus", name, "transport", bus.Transport)

		var (
			transport modbus.Transport
			err       error
		)

		switch bus.Transport {
		case "rtu":
			transport, err = openRTU(bus.Device, bus.Parity, bus.Baud, bus.TwoStopBits, bus.ResponseTimeout())
		case "tcp":
			addr, timeout := bus.Address, bus.ResponseTimeout()

			err = backoff.Retry(
				func() error {
					var derr error

					transport, derr = modbus.DialTCP(addr, modbus.WithTCPResponseTimeout(timeout))
					if derr != nil {
						cl.Errorw("dial modbus tcp", "error", derr)
						return derr
					}

					return nil
				},
				backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5),
			)
		default:
			err = fmt.Errorf("unknown transport %q", bus.Transport)
		}

		if err != nil {
			return nil, fmt.Errorf("open bus %s: %v", name, err)
		}

		cl.Info("bus connected")

		clients[name] = modbus.NewClient(transport)
	}

	return clients, nil
}

func openRTU(device, parity string, baud int, twoStopBits bool, timeout time.Duration) (modbus.Transport, error) {
	if baud == 0 {
		baud = 19200
	}

	opts := []serial.Option{serial.WithBaudRate(baud)}

	switch parity {
	case "", "even":
		// Modbus over serial line defaults to even parity
		opts = append(opts, serial.WithParity(serial.ParityEven))
	case "odd":
		opts = append(opts, serial.WithParity(serial.ParityOdd))
	case "none":
		opts = append(opts, serial.WithParity(serial.ParityNone))
	default:
		return nil, fmt.Errorf("unknown parity %q", parity)
	}

	if twoStopBits {
		opts = append(opts, serial.WithTwoStopBits())
	}

	port, err := serial.Open(device, opts...)
	if err != nil {
		return nil, err
	}

	return modbus.NewRTUTransport(port, modbus.WithRTUResponseTimeout(timeout)), nil
}
