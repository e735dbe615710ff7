package fieldbus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"nanomsg.org/go/mangos/v2"
	mangoerrs "nanomsg.org/go/mangos/v2/errors"
	"nanomsg.org/go/mangos/v2/protocol/pub"
	"nanomsg.org/go/mangos/v2/protocol/sub"
	"nanomsg.org/go/mangos/v2/transport/ws"

	_ "nanomsg.org/go/mangos/v2/transport/all" // register transports
)

// Stream defaults; the daemon listens here unless configured otherwise.
const (
	DefaultStreamAddress = "localhost:13175"

	// StreamEndpoint is the websocket path snapshots are published on.
	StreamEndpoint = "/fieldbus"
)

// StreamSocket wraps a mangos pub or sub socket carrying snapshots.
// Published messages are the device name followed by the JSON snapshot,
// so subscribers can filter by device with a plain prefix subscription.
type StreamSocket struct {
	sock   mangos.Socket
	prefix string

	quitOnce sync.Once
	q        chan struct{}
}

// NewStreamPublisher returns a publisher socket listening on url, e.g.
// "ws://localhost:13175/fieldbus".
func NewStreamPublisher(url string) (*StreamSocket, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("new pub socket: %v", err)
	}

	var opts map[string]interface{}

	if strings.HasPrefix(url, "ws") {
		opts = map[string]interface{}{ws.OptionWebSocketCheckOrigin: false}
	}

	l, err := sock.NewListener(url, opts)
	if err != nil {
		return nil, fmt.Errorf("new listener on %s: %v", url, err)
	}

	if err = l.Listen(); err != nil {
		return nil, fmt.Errorf("listen on %s: %v", url, err)
	}

	return &StreamSocket{sock: sock, q: make(chan struct{})}, nil
}

// NewStreamSubscriber returns a subscriber socket dialed to url and
// subscribed to device; an empty device receives every snapshot.
func NewStreamSubscriber(url, device string) (*StreamSocket, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("new sub socket: %v", err)
	}

	if err = sock.Dial(url); err != nil {
		return nil, fmt.Errorf("dial %s: %v", url, err)
	}

	if err = sock.SetOption(mangos.OptionSubscribe, []byte(device)); err != nil {
		return nil, fmt.Errorf("subscribe to %q: %v", device, err)
	}

	return &StreamSocket{sock: sock, prefix: device, q: make(chan struct{})}, nil
}

// PublishSnapshot implements SnapshotSink: the snapshot goes out as
// device name + JSON body.
func (s *StreamSocket) PublishSnapshot(snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %v", err)
	}

	return s.sock.Send(append([]byte(snap.Device), body...))
}

// StreamMessage is one received snapshot, or the receive error.
type StreamMessage struct {
	Snapshot Snapshot
	Err      error
}

// Listen starts receiving on the socket and returns the channel messages
// arrive on. The channel closes when Quit is called or the socket dies.
func (s *StreamSocket) Listen() <-chan *StreamMessage {
	c := make(chan *StreamMessage)

	go func() {
		defer close(c)

		for {
			body, err := s.sock.Recv()
			if err != nil {
				if err == mangoerrs.ErrClosed {
					return
				}

				select {
				case c <- &StreamMessage{Err: err}:
				case <-s.q:
					return
				}

				continue
			}

			body = bytes.TrimPrefix(body, []byte(s.prefix))

			// the body is prefixed with the device name; the snapshot
			// JSON starts at the first brace
			if i := bytes.IndexByte(body, '{'); i > 0 {
				body = body[i:]
			}

			var snap Snapshot
			if err = json.Unmarshal(body, &snap); err != nil {
				err = fmt.Errorf("unmarshal snapshot: %v", err)
			}

			select {
			case c <- &StreamMessage{Snapshot: snap, Err: err}:
			case <-s.q:
				return
			}
		}
	}()

	return c
}

// Quit stops the listener and closes the connection to the socket.
func (s *StreamSocket) Quit() {
	if s == nil {
		return
	}

	s.quitOnce.Do(func() {
		close(s.q)

		if s.sock != nil {
			_ = s.sock.Close()
		}
	})
}
