package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ctrlworks/fieldbus"
	"github.com/ctrlworks/fieldbus/canbus"
)

// monitorCAN tails the configured CAN interfaces and logs matching
// frames, so bus chatter lands in the same place as poll activity.
// Frames are not decoded; that is what the sniffer is for.
func monitorCAN(ctx context.Context, sugar *zap.SugaredLogger, conf fieldbus.Configuration) {
	for name, cc := range conf.CAN {
		cl := sugar.With("can_bus", name, "interface", cc.Interface)

		bus, err := canbus.Dial(cc.Interface, canbus.WithRecvTimeout(time.Millisecond*500))
		if err != nil {
			cl.Errorw("dial CAN interface", "error", err)
			continue
		}

		var filter canbus.Filter
		if len(cc.IDs) > 0 {
			filter = canbus.MatchAny(cc.IDs...)
		}

		m := canbus.NewMux(bus)

		frames, cancel := m.Subscribe(filter, 64)

		go func(cl *zap.SugaredLogger, bus canbus.Bus, m *canbus.Mux, cancel func()) {
			defer func() {
				cancel()

				_ = m.Close()
				_ = bus.Close()
			}()

			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-frames:
					if !ok {
						cl.Warn("CAN bus reader stopped")
						return
					}

					cl.Debugw("CAN frame", "frame", f.String())
				}
			}
		}(cl, bus, m, cancel)

		cl.Info("monitoring CAN interface")
	}
}
