// Package device owns the raw transport to the isc character device: the
// open/BIND/mmap sequence for each direction, the SEND/RECV/CLOSE ioctls,
// and the eventfd wake descriptor the delivery loop polls alongside the
// device fd.
package device

import (
	"github.com/isc-go/isc/internal/logging"
	"github.com/isc-go/isc/internal/ring"
	"github.com/isc-go/isc/internal/uapi"
)

// Direction is a bitmask of which rings a channel has bound.
type Direction uint8

const (
	DirSend Direction = 1 << 0
	DirRecv Direction = 1 << 1
)

func (d Direction) HasSend() bool { return d&DirSend != 0 }
func (d Direction) HasRecv() bool { return d&DirRecv != 0 }

// Attr describes the slot dimensions requested for one direction's ring.
type Attr struct {
	SlotSize  uint16
	SlotCount uint16
}

// Config is everything Open needs to establish a channel's transport.
type Config struct {
	UID        uint32
	Send       *Attr // nil: no send direction
	Recv       *Attr // never nil: recv is always bound
	DevicePath string
	Syscalls   Syscalls // nil: use the real unix-backed implementation
	Logger     *logging.Logger
}

// Handle owns the open device fd, its wake eventfd, and the send/recv
// rings bound against it. It knows nothing about readiness flags, listener
// dispatch, or send serialization — those live one level up, in the
// channel façade that composes a Handle with a delivery loop and a
// listener registry.
type Handle struct {
	sys    Syscalls
	fd     int
	wakeFd int

	direction Direction
	uid       uint32

	sendRing *ring.Ring
	recvRing *ring.Ring

	sendBoundAtOpen bool
	recvBoundAtOpen bool

	logger *logging.Logger
}

// Open opens the device, binds the recv ring (always) and the send ring
// (if cfg.Send is non-nil), and creates the wake eventfd. On any failure it
// tears down everything it had already opened before returning.
func Open(cfg Config) (*Handle, error) {
	sys := cfg.Syscalls
	if sys == nil {
		sys = NewUnixSyscalls()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	fd, err := sys.Open(cfg.DevicePath)
	if err != nil {
		return nil, wrapOpenErr("open", err)
	}

	h := &Handle{sys: sys, fd: fd, uid: cfg.UID, logger: logger}

	wakeFd, err := sys.Eventfd()
	if err != nil {
		sys.Close(fd)
		return nil, wrapOpenErr("eventfd", err)
	}
	h.wakeFd = wakeFd
	h.direction = DirRecv

	recvRing, recvReady, err := h.bind(uapi.DirRecvKToU, *cfg.Recv)
	if err != nil {
		sys.Close(wakeFd)
		sys.Close(fd)
		return nil, err
	}
	h.recvRing = recvRing
	h.recvBoundAtOpen = recvReady

	if cfg.Send != nil {
		h.direction |= DirSend
		sendRing, sendReady, err := h.bind(uapi.DirSendUToK, *cfg.Send)
		if err != nil {
			sys.Munmap(recvRing.Bytes())
			sys.Close(wakeFd)
			sys.Close(fd)
			return nil, err
		}
		h.sendRing = sendRing
		h.sendBoundAtOpen = sendReady
	}

	logger.Debug("device opened", "uid", cfg.UID, "direction", h.direction)
	return h, nil
}

func (h *Handle) bind(dir uapi.BindDir, attr Attr) (*ring.Ring, bool, error) {
	b := &uapi.Bind{
		UID:       h.uid,
		SlotSize:  attr.SlotSize,
		SlotCount: attr.SlotCount,
		Dir:       uint16(dir),
	}
	buf := uapi.MarshalBind(b)
	if err := h.sys.Ioctl(h.fd, uapi.BindCmd(), buf); err != nil {
		return nil, false, wrapErrno("bind", err)
	}
	uapi.UnmarshalBind(buf, b)

	want := (uint32(attr.SlotSize) + uapi.SlotHeaderSize) * uint32(attr.SlotCount)
	if b.Size < want {
		return nil, false, &TransportError{Op: "bind", Msg: "driver returned a ring smaller than requested"}
	}

	mem, err := h.sys.Mmap(h.fd, int64(b.Mem), int(b.Size))
	if err != nil {
		return nil, false, wrapErrno("mmap", err)
	}

	r := ring.New(mem, attr.SlotSize, attr.SlotCount)
	return r, b.Stat == 1, nil
}

// FD returns the open device file descriptor.
func (h *Handle) FD() int { return h.fd }

// WakeFD returns the eventfd the delivery loop polls alongside FD.
func (h *Handle) WakeFD() int { return h.wakeFd }

// Direction reports which rings this handle has bound.
func (h *Handle) Direction() Direction { return h.direction }

// SendRing returns the bound send ring, or nil if the channel has no send
// direction.
func (h *Handle) SendRing() *ring.Ring { return h.sendRing }

// RecvRing returns the bound recv ring. Always non-nil after a successful
// Open.
func (h *Handle) RecvRing() *ring.Ring { return h.recvRing }

// SendBoundAtOpen reports whether the driver reported the send ring's peer
// as already bound at BIND time.
func (h *Handle) SendBoundAtOpen() bool { return h.sendBoundAtOpen }

// RecvBoundAtOpen reports whether the driver reported the recv ring's peer
// as already bound at BIND time.
func (h *Handle) RecvBoundAtOpen() bool { return h.recvBoundAtOpen }

// SubmitSend issues the SEND ioctl for the given sequence number, one slot
// at a time, blocking until the peer's synchronous reply lands in the slot.
func (h *Handle) SubmitSend(seq uint16) error {
	sr := &uapi.SendRecv{Seq: seq, Num: 1}
	buf := uapi.MarshalSendRecv(sr)
	if err := h.sys.Ioctl(h.fd, uapi.SendCmd(), buf); err != nil {
		return wrapErrno("send", err)
	}
	return nil
}

// Ack issues the RECV ioctl to return ownership of the given recv slot to
// the driver.
func (h *Handle) Ack(seq uint16) error {
	sr := &uapi.SendRecv{Seq: seq, Num: 1}
	buf := uapi.MarshalSendRecv(sr)
	if err := h.sys.Ioctl(h.fd, uapi.RecvCmd(), buf); err != nil {
		return wrapErrno("recv_ack", err)
	}
	return nil
}

// WakeOnce writes one token to the wake eventfd, unblocking a delivery loop
// parked in poll(2).
func (h *Handle) WakeOnce() error {
	return h.sys.WriteEventfd(h.wakeFd, 1)
}

// Syscalls exposes the underlying transport so the delivery loop can poll
// {FD, WakeFD} directly — internal/delivery depends on this only by
// structural typing (its Poller interface), not on this package.
func (h *Handle) Syscalls() Syscalls { return h.sys }

// Close tears the handle down: unmap the send ring (if any), unmap the
// recv ring, issue CLOSE, then close the device and wake descriptors. The
// order (unmap before CLOSE) follows the original driver, which expects
// userspace to have dropped its mapping before the close ioctl runs.
func (h *Handle) Close() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if h.sendRing != nil {
		record(h.sys.Munmap(h.sendRing.Bytes()))
		h.sendRing.Destroy()
	}
	if h.recvRing != nil {
		record(h.sys.Munmap(h.recvRing.Bytes()))
		h.recvRing.Destroy()
	}

	closeBuf := make([]byte, 4)
	if err := h.sys.Ioctl(h.fd, uapi.CloseCmd(), closeBuf); err != nil {
		h.logger.Warn("close ioctl failed", "err", err)
	}

	record(h.sys.Close(h.wakeFd))
	record(h.sys.Close(h.fd))
	return first
}
