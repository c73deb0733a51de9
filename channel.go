// Package isc implements a userspace channel over the isc character
// device: a FOURCC-identified, bidirectional, slotted shared-memory
// conversation with a kernel peer, built on raw BIND/SEND/RECV/CLOSE
// ioctls and a poll-driven delivery loop.
package isc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isc-go/isc/internal/constants"
	"github.com/isc-go/isc/internal/delivery"
	"github.com/isc-go/isc/internal/device"
	"github.com/isc-go/isc/internal/listener"
	"github.com/isc-go/isc/internal/logging"
	"github.com/isc-go/isc/internal/uapi"
)

var (
	errNoCapabilities    = listener.ErrNoCapabilities
	errDuplicateListener = listener.ErrDuplicate
	errListenerNotFound  = listener.ErrNotFound
)

// Attr describes the slot dimensions of one direction's ring.
type Attr struct {
	SlotSize  uint16
	SlotCount uint16
}

// Capabilities is the set of callbacks a listener subscribes with; see
// internal/listener.Capabilities for the identity and dispatch semantics.
type Capabilities = listener.Capabilities

// Options configures Open beyond the mandatory uid/send/recv attrs.
type Options struct {
	Logger     *logging.Logger
	Observer   Observer
	DevicePath string
	Syscalls   device.Syscalls // nil: use the real unix-backed transport
}

// Channel is a single bound conversation with a kernel peer, identified by
// a caller-assigned uid (conventionally built with FourCC). It owns a
// device handle, a dedicated delivery goroutine, and a listener registry.
type Channel struct {
	uid       uint32
	direction device.Direction
	dev       *device.Handle
	loop      *delivery.Loop
	listeners *listener.Registry

	sendMu    sync.Mutex
	sendReady bool
	nextSeq   uint16

	recvReady atomic.Bool

	logger   *logging.Logger
	metrics  *Metrics
	observer Observer

	closeOnce sync.Once
}

// Open binds a channel under uid. recv is always bound (nil selects
// defaults); send is optional — a nil send Attr means the channel is
// receive-only.
func Open(uid uint32, send, recv *Attr, opts *Options) (*Channel, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	devicePath := opts.DevicePath
	if devicePath == "" {
		devicePath = constants.DefaultDevicePath
	}

	recvAttr := effectiveRecvAttr(recv)
	cfg := device.Config{
		UID:        uid,
		Send:       toDeviceAttr(send),
		Recv:       &recvAttr,
		DevicePath: devicePath,
		Syscalls:   opts.Syscalls,
		Logger:     logger,
	}

	dev, err := device.Open(cfg)
	if err != nil {
		return nil, WrapError("open", err)
	}

	ch := &Channel{
		uid:       uid,
		direction: dev.Direction(),
		dev:       dev,
		listeners: listener.NewRegistry(),
		logger:    logger,
		metrics:   NewMetrics(),
		observer:  opts.Observer,
	}
	if dev.SendBoundAtOpen() {
		ch.sendReady = true
	}
	if dev.RecvBoundAtOpen() {
		ch.recvReady.Store(true)
	}

	ch.loop = delivery.New(delivery.Config{
		DeviceFD: dev.FD(),
		WakeFD:   dev.WakeFD(),
		RecvRing: dev.RecvRing(),
		Handler:  ch.handleSlot,
		Ack:      dev.Ack,
		Wake:     dev.WakeOnce,
		Poller:   dev.Syscalls(),
		Logger:   logger,
	})
	ch.loop.Start()

	logger.Info("channel opened", "uid", uid, "direction", ch.direction)
	return ch, nil
}

func effectiveRecvAttr(recv *Attr) device.Attr {
	a := device.Attr{SlotSize: constants.MinRecvSlotSize, SlotCount: constants.DefaultRecvSlotCount}
	if recv != nil {
		if recv.SlotSize > a.SlotSize {
			a.SlotSize = recv.SlotSize
		}
		if recv.SlotCount > 0 {
			a.SlotCount = recv.SlotCount
		}
	}
	return a
}

func toDeviceAttr(a *Attr) *device.Attr {
	if a == nil {
		return nil
	}
	return &device.Attr{SlotSize: a.SlotSize, SlotCount: a.SlotCount}
}

// handleSlot is the delivery loop's SlotHandler: it dispatches a user
// payload to the listener registry, or applies an internal BOUND/UNBIND
// control message to the channel's readiness flags.
func (c *Channel) handleSlot(slot uapi.Slot) {
	if slot.IsUser() {
		payload := slot.Payload()[:slot.Len()]
		rc := c.listeners.BroadcastMessage(payload)
		slot.SetRC(rc)
		if c.observer != nil {
			c.observer.OnMessage(len(payload))
		}
		c.metrics.observeDispatch()
		return
	}

	switch slot.IntMsgID() {
	case uapi.MsgBound:
		if c.direction.HasRecv() {
			c.recvReady.Store(true)
		}
		c.sendMu.Lock()
		if c.direction.HasSend() {
			c.sendReady = true
		}
		c.sendMu.Unlock()
		c.listeners.BroadcastBound()
		c.metrics.observeBound()
	case uapi.MsgUnbind:
		c.listeners.BroadcastUnbind()
		c.sendMu.Lock()
		if c.direction.HasSend() {
			c.sendReady = false
		}
		c.sendMu.Unlock()
		if c.direction.HasRecv() {
			c.recvReady.Store(false)
		}
		c.metrics.observeUnbind()
	}
	slot.SetRC(0)
}

// Send transmits buf over the send ring and blocks for the peer's
// synchronous reply, which is copied back into buf in place. The returned
// int32 is the peer's reply code; a nil error only means the round trip
// completed at the transport level — callers must still check the reply
// code for a peer-level failure.
//
// The send lock is held for the entire round trip: sends from concurrent
// goroutines are serialized, never pipelined.
func (c *Channel) Send(buf []byte) (int32, error) {
	if !c.direction.HasSend() {
		return 0, NewError("send", ErrInvalidArgument, "channel has no send direction")
	}
	if len(buf) == 0 {
		return 0, NewError("send", ErrInvalidArgument, "payload must not be empty")
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendReady {
		return 0, NewError("send", ErrNotReady, "channel is not bound for sending")
	}

	ring := c.dev.SendRing()
	if len(buf) > int(ring.SlotSize()) {
		return 0, NewError("send", ErrPayloadTooLarge,
			fmt.Sprintf("payload of %d bytes exceeds slot size %d", len(buf), ring.SlotSize()))
	}

	slot := ring.PeekWrite()
	seq := c.nextSeq
	slot.SetFlags(0)
	slot.SetFlags(uapi.FlagUser)
	slot.SetSeq(seq)
	slot.SetLen(uint16(len(buf)))
	copy(slot.Payload(), buf)

	start := time.Now()
	if err := c.dev.SubmitSend(seq); err != nil {
		c.metrics.observeSendError()
		return 0, WrapError("send", err)
	}

	peerRC := slot.RC()
	if peerRC == 0 {
		copy(buf, slot.Payload()[:len(buf)])
	}

	ring.AdvanceWrite()
	ring.AdvanceRead()
	c.nextSeq++

	c.metrics.observeSend(time.Since(start), len(buf))
	if peerRC != 0 && c.observer != nil {
		c.observer.OnPeerError(peerRC)
	}
	return peerRC, nil
}

// AddListener registers caps/arg for bound/unbind/message events. If the
// channel's recv side is already ready at the moment of registration, caps'
// Bound callback fires once, synchronously, outside the registry lock —
// this late-subscriber notification happens even when Add itself reports
// ErrDuplicate, matching the original driver's unconditional post-unlock
// notification.
func (c *Channel) AddListener(caps *Capabilities, arg any) error {
	err := c.listeners.Add(caps, arg)
	if err != nil && err != errDuplicateListener {
		return mapListenerErr("add_listener", err)
	}
	if caps != nil && caps.Bound != nil && c.recvReady.Load() {
		caps.Bound(arg)
	}
	return mapListenerErr("add_listener", err)
}

// RemoveListener unregisters caps/arg.
func (c *Channel) RemoveListener(caps *Capabilities, arg any) error {
	return mapListenerErr("remove_listener", c.listeners.Remove(caps, arg))
}

// Metrics returns the channel's live metrics snapshot accessor.
func (c *Channel) Metrics() *Metrics { return c.metrics }

// Close stops the delivery loop and tears down the device transport. It is
// safe to call more than once; only the first call does any work.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.loop.Stop()
		if cerr := c.dev.Close(); cerr != nil {
			err = WrapError("close", cerr)
		}
	})
	return err
}
