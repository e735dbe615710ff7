package canbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackDeliversToOtherEndpoints(t *testing.T) {
	hub := NewLoopback()

	defer func() {
		_ = hub.Close()
	}()

	a := hub.Open()
	b := hub.Open()

	f, err := NewFrame(0x42, []byte{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, a.Send(f))

	got, err := b.Receive()
	assert.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestLoopbackDoesNotEchoToSender(t *testing.T) {
	hub := NewLoopback()

	defer func() {
		_ = hub.Close()
	}()

	a := hub.Open()
	b := hub.Open()

	f, err := NewFrame(0x42, nil)
	require.NoError(t, err)

	require.NoError(t, a.Send(f))

	// b got it; a's queue stays empty, so closing and receiving errors
	_, err = b.Receive()
	require.NoError(t, err)

	require.NoError(t, a.Close())

	_, err = a.Receive()
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestLoopbackClosedHubRejectsSend(t *testing.T) {
	hub := NewLoopback()
	ep := hub.Open()

	require.NoError(t, hub.Close())

	f, err := NewFrame(1, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, ep.Send(f), ErrBusClosed)
}

func TestLoopbackSendValidates(t *testing.T) {
	hub := NewLoopback()

	defer func() {
		_ = hub.Close()
	}()

	ep := hub.Open()

	assert.ErrorIs(t, ep.Send(Frame{ID: MaxExtendedID + 1, Extended: true}), ErrBadID)
}
