package fieldbus

import (
	"fmt"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"

	"github.com/ctrlworks/fieldbus/modbus"
)

func streamURL(t *testing.T) string {
	t.Helper()

	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatal(err)
	}

	return fmt.Sprintf("ws://127.0.0.1:%d%s", port, StreamEndpoint)
}

func TestStreamRoundTrip(t *testing.T) {
	url := streamURL(t)

	pub, err := NewStreamPublisher(url)
	if err != nil {
		t.Fatal(err)
	}

	defer pub.Quit()

	sub, err := NewStreamSubscriber(url, "")
	if err != nil {
		t.Fatal(err)
	}

	defer sub.Quit()

	msgs := sub.Listen()

	// give the subscriber time to attach before publishing
	time.Sleep(time.Millisecond * 200)

	want := Snapshot{
		Device: "pump1",
		At:     time.Now().UTC(),
		Blocks: []BlockResult{{
			Function:  modbus.FuncReadInputRegisters,
			Quantity:  2,
			Registers: []uint16{100, 200},
		}},
	}

	if err = pub.PublishSnapshot(want); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		if msg.Err != nil {
			t.Fatal(msg.Err)
		}

		assert.Equal(t, "pump1", msg.Snapshot.Device)

		if assert.Len(t, msg.Snapshot.Blocks, 1) {
			assert.Equal(t, []uint16{100, 200}, msg.Snapshot.Blocks[0].Registers)
		}
	case <-time.After(time.Second * 2):
		t.Fatal("no snapshot received within 2s")
	}
}

func TestStreamDeviceFilter(t *testing.T) {
	url := streamURL(t)

	pub, err := NewStreamPublisher(url)
	if err != nil {
		t.Fatal(err)
	}

	defer pub.Quit()

	sub, err := NewStreamSubscriber(url, "valve1")
	if err != nil {
		t.Fatal(err)
	}

	defer sub.Quit()

	msgs := sub.Listen()

	time.Sleep(time.Millisecond * 200)

	if err = pub.PublishSnapshot(Snapshot{Device: "pump1"}); err != nil {
		t.Fatal(err)
	}

	if err = pub.PublishSnapshot(Snapshot{Device: "valve1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		if msg.Err != nil {
			t.Fatal(msg.Err)
		}

		// the pump1 snapshot never makes it past the prefix subscription
		assert.Equal(t, "valve1", msg.Snapshot.Device)
	case <-time.After(time.Second * 2):
		t.Fatal("no snapshot received within 2s")
	}
}

func TestStreamQuitIdempotent(t *testing.T) {
	pub, err := NewStreamPublisher(streamURL(t))
	if err != nil {
		t.Fatal(err)
	}

	pub.Quit()
	pub.Quit()
}
