package fieldbus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/ctrlworks/fieldbus/modbus"
)

// Poller drives one goroutine per registered device, reading its poll
// blocks through the shared bus client on a fixed period. Every cycle
// produces a Snapshot that updates the device's cached state and is
// fanned out to the configured sinks.
//
// The bus client already retries individual requests; the poller's own
// backoff only stretches the period while a device stays down, so one
// dead unit does not hammer a shared serial line.
type Poller struct {
	registry map[string]*DeviceInfo
	logger   *zap.SugaredLogger
	sinks    []SnapshotSink
}

// NewPoller returns a Poller over registry publishing to sinks.
func NewPoller(registry map[string]*DeviceInfo, logger *zap.SugaredLogger, sinks ...SnapshotSink) *Poller {
	if logger == nil {
		logger = zap.NewExample().Sugar()
	}

	return &Poller{
		registry: registry,
		logger:   logger,
		sinks:    sinks,
	}
}

// Run polls until ctx is canceled. It is a NON-BLOCKING call; each
// device gets its own goroutine.
func (p *Poller) Run(ctx context.Context) {
	for _, dev := range p.registry {
		go p.pollDevice(ctx, dev)
	}
}

func (p *Poller) pollDevice(ctx context.Context, dev *DeviceInfo) {
	cl := p.logger.With("device", dev.Name, "bus", dev.Bus, "unit", dev.Unit)
	cl.Info("starting poll loop")

	down := backoff.NewExponentialBackOff()
	down.InitialInterval = dev.Period
	down.MaxInterval = 30 * time.Second
	down.MaxElapsedTime = 0 // keep trying for as long as we run

	wait := dev.currentPeriod()

	for {
		select {
		case <-ctx.Done():
			cl.Info("poll loop shutting down")
			return
		case <-time.After(wait):
		}

		snap := p.pollOnce(ctx, dev)
		dev.State.Update(snap)
		p.publish(cl, snap)

		if snap.Error != "" {
			cl.Warnw("poll cycle failed", "error", snap.Error)
			pollErrors.WithLabelValues(dev.Name).Inc()

			wait = down.NextBackOff()

			continue
		}

		down.Reset()

		wait = dev.currentPeriod()
	}
}

// currentPeriod consults the monitored configuration so an edited
// poll_ms takes effect on the next cycle without a restart. Devices
// added or removed from the file still need a restart; only the period
// is hot.
func (dev *DeviceInfo) currentPeriod() time.Duration {
	if conf := globalConfiguration(); conf != nil {
		if dc, ok := conf.Devices[dev.Name]; ok {
			return dc.pollPeriod()
		}
	}

	return dev.Period
}

func (p *Poller) pollOnce(ctx context.Context, dev *DeviceInfo) Snapshot {
	start := time.Now()
	snap := Snapshot{Device: dev.Name, At: start}

	for _, block := range dev.Blocks {
		result, err := readBlock(ctx, dev, block)
		if err != nil {
			snap.Error = err.Error()
			snap.Blocks = nil

			break
		}

		snap.Blocks = append(snap.Blocks, result)
	}

	pollTotal.WithLabelValues(dev.Name).Inc()
	pollDuration.WithLabelValues(dev.Name).Observe(time.Since(start).Seconds())

	return snap
}

func readBlock(ctx context.Context, dev *DeviceInfo, block PollBlock) (BlockResult, error) {
	result := BlockResult{Function: block.Function, Address: block.Address, Quantity: block.Quantity}

	var err error

	switch block.Function {
	case modbus.FuncReadCoils:
		result.Bits, err = dev.Client.ReadCoils(ctx, dev.Unit, block.Address, block.Quantity)
	case modbus.FuncReadDiscreteInputs:
		result.Bits, err = dev.Client.ReadDiscreteInputs(ctx, dev.Unit, block.Address, block.Quantity)
	case modbus.FuncReadHoldingRegisters:
		result.Registers, err = dev.Client.ReadHoldingRegisters(ctx, dev.Unit, block.Address, block.Quantity)
	case modbus.FuncReadInputRegisters:
		result.Registers, err = dev.Client.ReadInputRegisters(ctx, dev.Unit, block.Address, block.Quantity)
	}

	if err != nil {
		return BlockResult{}, err
	}

	return result, nil
}

func (p *Poller) publish(cl *zap.SugaredLogger, snap Snapshot) {
	for _, sink := range p.sinks {
		if err := sink.PublishSnapshot(snap); err != nil {
			cl.Debugw("publish snapshot", "error", err)
		}
	}
}
