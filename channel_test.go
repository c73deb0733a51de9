package isc

import (
	"sync"
	"testing"
	"time"

	"github.com/isc-go/isc/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestChannel(t *testing.T, peer *MockPeer, send, recv *Attr) *Channel {
	t.Helper()
	ch, err := Open(FourCC('T', 'E', 'S', 'T'), send, recv, &Options{Syscalls: peer})
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestOpenBindsSendAndRecvDirections(t *testing.T) {
	peer := NewMockPeer(
		device.Attr{SlotSize: 64, SlotCount: 4},
		device.Attr{SlotSize: 32, SlotCount: 8},
	)
	ch := openTestChannel(t, peer, &Attr{SlotSize: 64, SlotCount: 4}, &Attr{SlotSize: 32, SlotCount: 8})

	assert.True(t, ch.direction.HasSend())
	assert.True(t, ch.direction.HasRecv())
}

func TestSendRoundTripReturnsPeerReply(t *testing.T) {
	peer := NewMockPeer(
		device.Attr{SlotSize: 64, SlotCount: 4},
		device.Attr{SlotSize: 32, SlotCount: 8},
	)
	peer.ReplyFn = func(req []byte) (int32, []byte) {
		return 0, append([]byte("ack:"), req...)
	}
	ch := openTestChannel(t, peer, &Attr{SlotSize: 64, SlotCount: 4}, &Attr{SlotSize: 32, SlotCount: 8})

	want := []byte("ack:hello")
	buf := make([]byte, len(want))
	copy(buf, []byte("hello"))

	rc, err := ch.Send(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(0), rc)
	assert.Equal(t, want, buf)
}

func TestSendLeavesBufUntouchedOnPeerError(t *testing.T) {
	peer := NewMockPeer(
		device.Attr{SlotSize: 64, SlotCount: 4},
		device.Attr{SlotSize: 32, SlotCount: 8},
	)
	peer.ReplyFn = func(req []byte) (int32, []byte) {
		return -1, []byte("rejected!")
	}
	ch := openTestChannel(t, peer, &Attr{SlotSize: 64, SlotCount: 4}, &Attr{SlotSize: 32, SlotCount: 8})

	want := []byte("hello")
	buf := make([]byte, len(want))
	copy(buf, want)

	rc, err := ch.Send(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), rc)
	assert.Equal(t, want, buf, "buf must retain the request data on a peer error reply")
}

func TestSendWithoutSendDirectionFails(t *testing.T) {
	peer := NewMockPeer(device.Attr{}, device.Attr{SlotSize: 32, SlotCount: 8})
	ch := openTestChannel(t, peer, nil, &Attr{SlotSize: 32, SlotCount: 8})

	_, err := ch.Send([]byte("x"))
	assert.True(t, IsKind(err, ErrInvalidArgument))
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	peer := NewMockPeer(
		device.Attr{SlotSize: 8, SlotCount: 2},
		device.Attr{SlotSize: 32, SlotCount: 8},
	)
	ch := openTestChannel(t, peer, &Attr{SlotSize: 8, SlotCount: 2}, &Attr{SlotSize: 32, SlotCount: 8})

	_, err := ch.Send(make([]byte, 64))
	assert.True(t, IsKind(err, ErrPayloadTooLarge))
}

func TestPushedUserMessageDispatchesToListener(t *testing.T) {
	peer := NewMockPeer(device.Attr{}, device.Attr{SlotSize: 32, SlotCount: 8})
	ch := openTestChannel(t, peer, nil, &Attr{SlotSize: 32, SlotCount: 8})

	var mu sync.Mutex
	var got []byte
	err := ch.AddListener(&Capabilities{
		Got: func(payload []byte, arg any) int32 {
			mu.Lock()
			got = append([]byte(nil), payload...)
			mu.Unlock()
			return 0
		},
	}, 1)
	require.NoError(t, err)

	peer.PushUserMessage([]byte("hi there"))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "hi there"
	})
}

func TestPushedBoundFiresListenerAndSetsSendReady(t *testing.T) {
	peer := NewMockPeer(
		device.Attr{SlotSize: 16, SlotCount: 2},
		device.Attr{SlotSize: 32, SlotCount: 8},
	)
	peer.recvAlreadyBound = false
	peer.sendAlreadyBound = false

	ch := openTestChannel(t, peer, &Attr{SlotSize: 16, SlotCount: 2}, &Attr{SlotSize: 32, SlotCount: 8})
	require.False(t, ch.recvReady.Load())

	var boundCalls int
	var mu sync.Mutex
	err := ch.AddListener(&Capabilities{
		Bound: func(arg any) {
			mu.Lock()
			boundCalls++
			mu.Unlock()
		},
	}, 2)
	require.NoError(t, err)

	peer.PushBound()

	waitFor(t, time.Second, func() bool { return ch.recvReady.Load() })
	waitFor(t, time.Second, func() bool {
		ch.sendMu.Lock()
		defer ch.sendMu.Unlock()
		return ch.sendReady
	})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return boundCalls == 1
	})
}

func TestAddListenerNotifiesLateSubscriberWhenAlreadyReady(t *testing.T) {
	peer := NewMockPeer(device.Attr{}, device.Attr{SlotSize: 32, SlotCount: 8})
	ch := openTestChannel(t, peer, nil, &Attr{SlotSize: 32, SlotCount: 8})

	called := make(chan struct{}, 1)
	err := ch.AddListener(&Capabilities{
		Bound: func(arg any) { called <- struct{}{} },
	}, 3)
	require.NoError(t, err)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected Bound to fire immediately for a late subscriber")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	peer := NewMockPeer(device.Attr{}, device.Attr{SlotSize: 32, SlotCount: 8})
	ch := openTestChannel(t, peer, nil, &Attr{SlotSize: 32, SlotCount: 8})

	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}
