package canbus

import "sync"

// Loopback is an in-memory bus hub for tests and the simulator. Every
// endpoint opened from the hub sees frames sent by every other endpoint,
// the way distinct SocketCAN sockets on one interface do.
type Loopback struct {
	mx        sync.Mutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopback creates an empty hub.
func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open attaches a new endpoint to the hub.
func (l *Loopback) Open() Bus {
	ep := &loopEndpoint{
		hub:  l,
		rx:   make(chan Frame, 64),
		done: make(chan struct{}),
	}

	l.mx.Lock()
	defer l.mx.Unlock()

	if l.closed {
		close(ep.done)
		return ep
	}

	l.endpoints[ep] = struct{}{}

	return ep
}

// Close detaches and closes every endpoint.
func (l *Loopback) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	for ep := range l.endpoints {
		ep.markClosed()
	}

	l.endpoints = nil

	return nil
}

func (l *Loopback) broadcast(from *loopEndpoint, f Frame) error {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.closed {
		return ErrBusClosed
	}

	for ep := range l.endpoints {
		if ep == from {
			continue
		}

		select {
		case ep.rx <- f:
		default:
			// receiver queue full; a real controller would drop too
		}
	}

	return nil
}

func (l *Loopback) detach(ep *loopEndpoint) {
	l.mx.Lock()
	defer l.mx.Unlock()

	if !l.closed {
		delete(l.endpoints, ep)
	}
}

type loopEndpoint struct {
	hub  *Loopback
	rx   chan Frame
	once sync.Once
	done chan struct{}
}

func (ep *loopEndpoint) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	select {
	case <-ep.done:
		return ErrBusClosed
	default:
	}

	return ep.hub.broadcast(ep, f)
}

func (ep *loopEndpoint) Receive() (Frame, error) {
	select {
	case f := <-ep.rx:
		return f, nil
	case <-ep.done:
		// drain anything that raced with close
		select {
		case f := <-ep.rx:
			return f, nil
		default:
			return Frame{}, ErrBusClosed
		}
	}
}

func (ep *loopEndpoint) Close() error {
	ep.hub.detach(ep)
	ep.markClosed()

	return nil
}

func (ep *loopEndpoint) markClosed() {
	ep.once.Do(func() {
		close(ep.done)
	})
}
