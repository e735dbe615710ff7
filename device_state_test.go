package fieldbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceStateNoData(t *testing.T) {
	ds := NewDeviceState()

	_, err := ds.Latest()
	assert.Equal(t, ErrNoData, err)
}

func TestDeviceStateUpdate(t *testing.T) {
	ds := NewDeviceState()

	ds.Update(Snapshot{Device: "pump1", At: time.Now()})

	snap, err := ds.Latest()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "pump1", snap.Device)
}

func TestDeviceStateExpiry(t *testing.T) {
	ds := NewDeviceState(WithDataExpiry(time.Millisecond * 50))

	ds.Update(Snapshot{Device: "pump1"})

	time.Sleep(time.Millisecond * 100)

	_, err := ds.Latest()
	assert.Equal(t, ErrDataExpired, err)
}
