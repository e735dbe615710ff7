package fieldbus

import "time"

// BlockResult is the raw outcome of reading one poll block.
type BlockResult struct {
	Function byte   `json:"function"`
	Address  uint16 `json:"address"`
	Quantity uint16 `json:"quantity"`

	// exactly one of these is set, depending on the function code
	Bits      []bool   `json:"bits,omitempty"`
	Registers []uint16 `json:"registers,omitempty"`
}

// Snapshot is the result of one poll cycle against one device. It is
// what the stream, the MQTT bridge and the HTTP API hand out.
type Snapshot struct {
	Device string        `json:"device"`
	At     time.Time     `json:"at"`
	Error  string        `json:"error,omitempty"`
	Blocks []BlockResult `json:"blocks,omitempty"`
}

// SnapshotSink receives every completed poll cycle. The mangos stream
// and the MQTT bridge implement it.
type SnapshotSink interface {
	PublishSnapshot(Snapshot) error
}
