package fieldbus

import (
	"errors"
	"sync"
	"time"
)

const _defaultDataExpiry = 10 * time.Second

var (
	// ErrNoData means the device has not completed a poll cycle yet.
	ErrNoData = errors.New("no data received from device yet")

	// ErrDataExpired means the last snapshot is older than the expiry.
	ErrDataExpired = errors.New("device data expired")
)

// DeviceState caches the latest snapshot for one device. Readers on the
// HTTP API consult it instead of touching the bus; data older than the
// expiry is treated as missing so a dead device cannot look healthy.
type DeviceState struct {
	mx         sync.Mutex
	snap       Snapshot
	lastSeen   time.Time
	dataExpiry time.Duration
}

// DeviceStateOption configures a DeviceState.
type DeviceStateOption func(*DeviceState)

// WithDataExpiry overrides the default 10s snapshot expiry.
func WithDataExpiry(expiry time.Duration) DeviceStateOption {
	return func(ds *DeviceState) {
		ds.dataExpiry = expiry
	}
}

// NewDeviceState returns a new pointer to a configured DeviceState.
func NewDeviceState(options ...DeviceStateOption) *DeviceState {
	ds := &DeviceState{dataExpiry: _defaultDataExpiry}

	for _, option := range options {
		option(ds)
	}

	return ds
}

// Update stores the latest snapshot.
func (ds *DeviceState) Update(snap Snapshot) {
	ds.mx.Lock()
	defer ds.mx.Unlock()

	ds.snap = snap
	ds.lastSeen = time.Now()
}

// Latest returns the most recent snapshot, or an error if none arrived
// yet or the last one is stale.
func (ds *DeviceState) Latest() (Snapshot, error) {
	ds.mx.Lock()
	defer ds.mx.Unlock()

	if ds.lastSeen.IsZero() {
		return Snapshot{}, ErrNoData
	}

	if time.Since(ds.lastSeen) > ds.dataExpiry {
		return Snapshot{}, ErrDataExpired
	}

	return ds.snap, nil
}
