package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Identifier and flag bits of the can_id word, mirroring linux/can.h.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF

	idExtendedFlag = 1 << 31 // CAN_EFF_FLAG
	idRemoteFlag   = 1 << 30 // CAN_RTR_FLAG
	idErrorFlag    = 1 << 29 // CAN_ERR_FLAG
)

// frameWireLength is sizeof(struct can_frame) for classical CAN.
const frameWireLength = 16

var (
	// ErrBadID means the identifier does not fit its 11 or 29 bit space.
	ErrBadID = errors.New("canbus: identifier out of range")

	// ErrBadLength means the payload exceeds the classical CAN maximum
	// of 8 bytes.
	ErrBadLength = errors.New("canbus: payload longer than 8 bytes")
)

// Frame is a classical CAN data or remote frame. CAN FD is out of scope.
type Frame struct {
	ID       uint32
	Extended bool // 29-bit identifier
	Remote   bool // remote transmission request
	Len      uint8
	Data     [8]byte
}

// NewFrame builds a data frame from id and data, selecting the extended
// format automatically when id does not fit 11 bits.
func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id, Extended: id > MaxStandardID, Len: uint8(len(data))}

	if len(data) > 8 {
		return Frame{}, ErrBadLength
	}

	copy(f.Data[:], data)

	return f, f.Validate()
}

// Validate checks the identifier range and payload length.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrBadLength
	}

	limit := uint32(MaxStandardID)
	if f.Extended {
		limit = MaxExtendedID
	}

	if f.ID > limit {
		return ErrBadID
	}

	return nil
}

// Payload returns the valid portion of the data array.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

func (f Frame) String() string {
	if f.Remote {
		return fmt.Sprintf("%03X#R", f.ID)
	}

	return fmt.Sprintf("%03X#% X", f.ID, f.Payload())
}

// MarshalBinary encodes the frame into the 16-byte little-endian
// struct can_frame layout used by SocketCAN:
//
//	0..3  can_id with EFF/RTR flags
//	4     dlc
//	5..7  padding
//	8..15 data
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	id := f.ID
	if f.Extended {
		id |= idExtendedFlag
	}

	if f.Remote {
		id |= idRemoteFlag
	}

	wire := make([]byte, frameWireLength)
	binary.LittleEndian.PutUint32(wire[0:4], id)
	wire[4] = f.Len
	copy(wire[8:], f.Data[:])

	return wire, nil
}

// UnmarshalBinary decodes a struct can_frame.
func (f *Frame) UnmarshalBinary(wire []byte) error {
	if len(wire) < frameWireLength {
		return fmt.Errorf("canbus: frame needs %d bytes, got %d", frameWireLength, len(wire))
	}

	id := binary.LittleEndian.Uint32(wire[0:4])

	f.Extended = id&idExtendedFlag != 0
	f.Remote = id&idRemoteFlag != 0

	if f.Extended {
		f.ID = id & MaxExtendedID
	} else {
		f.ID = id & MaxStandardID
	}

	f.Len = wire[4]
	if f.Len > 8 {
		return ErrBadLength
	}

	copy(f.Data[:], wire[8:16])

	return nil
}
