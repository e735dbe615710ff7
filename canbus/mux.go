package canbus

import "sync"

// Filter decides whether a subscriber wants a frame.
type Filter func(Frame) bool

// MatchID passes frames with exactly the given identifier.
func MatchID(id uint32) Filter {
	return func(f Frame) bool { return f.ID == id }
}

// MatchAny passes frames carrying any of the given identifiers.
func MatchAny(ids ...uint32) Filter {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return func(f Frame) bool {
		_, ok := set[f.ID]
		return ok
	}
}

// MatchMask passes frames where (id & mask) equals (want & mask), the
// same semantics as a kernel CAN_RAW_FILTER entry.
func MatchMask(want, mask uint32) Filter {
	want &= mask

	return func(f Frame) bool { return f.ID&mask == want }
}

// DataFramesOnly drops remote transmission requests.
func DataFramesOnly() Filter {
	return func(f Frame) bool { return !f.Remote }
}

// Mux owns a bus's receive side and fans incoming frames out to filtered
// subscribers, so several protocol consumers can share one socket without
// racing on Receive. Sending stays on the underlying Bus.
type Mux struct {
	bus      Bus
	done     chan struct{}
	stopOnce sync.Once

	mx     sync.Mutex
	nextID uint64
	subs   map[uint64]*muxSub
}

type muxSub struct {
	filter Filter
	frames chan Frame
}

// NewMux starts a reader goroutine on bus. The Mux stops when the bus
// closes or Close is called; subscriber channels are then closed.
func NewMux(bus Bus) *Mux {
	m := &Mux{
		bus:  bus,
		done: make(chan struct{}),
		subs: make(map[uint64]*muxSub),
	}

	go m.run()

	return m
}

// Close stops the reader and closes all subscriber channels. The
// underlying bus is left open for the owner to close.
func (m *Mux) Close() error {
	m.shutdown()
	return nil
}

func (m *Mux) shutdown() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.closeSubs()
	})
}

// Subscribe registers a filtered subscriber with the given channel
// capacity. The returned cancel func detaches it and closes the channel.
// Frames are dropped for subscribers that fall behind, never queued
// against the bus reader.
func (m *Mux) Subscribe(filter Filter, capacity int) (<-chan Frame, func()) {
	if capacity <= 0 {
		capacity = 16
	}

	sub := &muxSub{filter: filter, frames: make(chan Frame, capacity)}

	m.mx.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.mx.Unlock()

	cancel := func() {
		m.mx.Lock()
		defer m.mx.Unlock()

		if cur, ok := m.subs[id]; ok && cur == sub {
			delete(m.subs, id)
			close(cur.frames)
		}
	}

	return sub.frames, cancel
}

func (m *Mux) run() {
	for {
		select {
		case <-m.done:
			return
		default:
		}

		f, err := m.bus.Receive()
		if err != nil {
			if err == ErrRecvTimeout {
				continue
			}

			m.shutdown()

			return
		}

		m.mx.Lock()
		for _, sub := range m.subs {
			if sub.filter != nil && !sub.filter(f) {
				continue
			}

			select {
			case sub.frames <- f:
			default:
			}
		}
		m.mx.Unlock()
	}
}

func (m *Mux) closeSubs() {
	m.mx.Lock()
	defer m.mx.Unlock()

	for id, sub := range m.subs {
		close(sub.frames)
		delete(m.subs, id)
	}
}
