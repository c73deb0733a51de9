package isc

import (
	"errors"
	"sync"

	"github.com/isc-go/isc/internal/device"
	"github.com/isc-go/isc/internal/ring"
	"github.com/isc-go/isc/internal/uapi"
	"golang.org/x/sys/unix"
)

// MockPeer is an in-process stand-in for the kernel driver, implementing
// device.Syscalls so Open can run end to end — real poll(2), real eventfd,
// real ring memory — without a loaded module or root. The "device fd" is
// the read end of a non-blocking pipe: each pushed slot writes one byte to
// the write end, and each RECV ack consumes one byte, so the device fd is
// readable exactly while unacknowledged slots are pending.
//
// Tests drive it like a peer would: PushUserMessage/PushBound/PushUnbind
// write a slot into the recv ring and signal the device fd; ReplyFn
// controls what the simulated driver returns from the SEND ioctl.
type MockPeer struct {
	mu sync.Mutex

	devR, devW int
	wakeFd     int

	recvAttr device.Attr
	sendAttr device.Attr
	recvMem  []byte
	sendMem  []byte
	recvRing *ring.Ring

	recvAlreadyBound bool
	sendAlreadyBound bool

	// ReplyFn computes the peer's synchronous reply to a Send; it receives
	// the request payload and returns a reply code and reply payload. The
	// default echoes the request back with rc 0.
	ReplyFn func(req []byte) (rc int32, reply []byte)

	lastBindDir uapi.BindDir
	closed      bool
}

// NewMockPeer builds a MockPeer ready to bind the given attrs. send may be
// zero-valued for a channel opened without a send direction; recv must match
// the recv Attr Open will bind, since the recv ring is always bound.
func NewMockPeer(send, recv device.Attr) *MockPeer {
	p := &MockPeer{
		sendAttr:         send,
		recvAttr:         recv,
		recvAlreadyBound: true,
		sendAlreadyBound: true,
	}
	p.recvMem = make([]byte, (uint32(recv.SlotSize)+uapi.SlotHeaderSize)*uint32(recv.SlotCount))
	if send.SlotCount > 0 {
		p.sendMem = make([]byte, (uint32(send.SlotSize)+uapi.SlotHeaderSize)*uint32(send.SlotCount))
	}
	p.recvRing = ring.New(p.recvMem, recv.SlotSize, recv.SlotCount)
	return p
}

func (p *MockPeer) Open(path string) (int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return 0, err
	}
	p.devR, p.devW = fds[0], fds[1]
	return p.devR, nil
}

func (p *MockPeer) Close(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	unix.Close(p.devR)
	unix.Close(p.devW)
	if p.wakeFd != 0 {
		unix.Close(p.wakeFd)
	}
	return nil
}

func (p *MockPeer) Ioctl(fd int, cmd uintptr, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch cmd {
	case uapi.BindCmd():
		var b uapi.Bind
		uapi.UnmarshalBind(buf, &b)
		dir := uapi.BindDir(b.Dir)
		p.lastBindDir = dir
		b.Stat = 0
		if dir == uapi.DirRecvKToU {
			b.Size = uint32(len(p.recvMem))
			if p.recvAlreadyBound {
				b.Stat = 1
			}
		} else {
			b.Size = uint32(len(p.sendMem))
			if p.sendAlreadyBound {
				b.Stat = 1
			}
		}
		b.Mem = 0
		uapi.PutBind(buf, &b)
		return nil

	case uapi.SendCmd():
		var sr uapi.SendRecv
		uapi.UnmarshalSendRecv(buf, &sr)
		idx := sr.Seq % p.sendAttr.SlotCount
		stride := int(uapi.SlotHeaderSize) + int(p.sendAttr.SlotSize)
		slot := uapi.Slot(p.sendMem[int(idx)*stride : (int(idx)+1)*stride])

		req := append([]byte(nil), slot.Payload()[:slot.Len()]...)
		replyFn := p.ReplyFn
		if replyFn == nil {
			replyFn = func(req []byte) (int32, []byte) { return 0, req }
		}
		rc, reply := replyFn(req)
		slot.SetRC(rc)
		slot.SetLen(uint16(len(reply)))
		copy(slot.Payload(), reply)
		return nil

	case uapi.RecvCmd():
		var token [1]byte
		unix.Read(p.devR, token[:])
		return nil

	case uapi.CloseCmd():
		return nil
	}
	return errors.New("mockpeer: unexpected ioctl command")
}

func (p *MockPeer) Mmap(fd int, offset int64, length int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastBindDir == uapi.DirRecvKToU {
		return p.recvMem, nil
	}
	return p.sendMem, nil
}

func (p *MockPeer) Munmap(b []byte) error { return nil }

func (p *MockPeer) Eventfd() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		return 0, err
	}
	p.wakeFd = fd
	return fd, nil
}

func (p *MockPeer) Poll(fds []unix.PollFd, timeoutMs int) (int, error) {
	return unix.Poll(fds, timeoutMs)
}

func (p *MockPeer) ReadEventfd(fd int) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil || n != 8 {
		return 0, err
	}
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24, nil
}

func (p *MockPeer) WriteEventfd(fd int, v uint64) error {
	var buf [8]byte
	buf[0] = byte(v)
	_, err := unix.Write(fd, buf[:])
	return err
}

// pushSlot writes into the next recv slot and wakes a poll(2)-blocked
// delivery loop by making the device fd readable.
func (p *MockPeer) pushSlot(fill func(uapi.Slot)) {
	p.mu.Lock()
	slot := p.recvRing.PeekWrite()
	fill(slot)
	p.recvRing.AdvanceWrite()
	devW := p.devW
	p.mu.Unlock()

	unix.Write(devW, []byte{1})
}

// PushUserMessage enqueues a user payload into the recv ring as if the
// driver had just delivered it, waking the delivery loop.
func (p *MockPeer) PushUserMessage(payload []byte) {
	p.pushSlot(func(slot uapi.Slot) {
		slot.SetFlags(uapi.FlagUser)
		slot.SetLen(uint16(len(payload)))
		copy(slot.Payload(), payload)
	})
}

// PushBound enqueues an internal BOUND control message.
func (p *MockPeer) PushBound() {
	p.pushSlot(func(slot uapi.Slot) {
		slot.SetFlags(0)
		slot.PutIntMsg(uapi.MsgBound)
	})
}

// PushUnbind enqueues an internal UNBIND control message.
func (p *MockPeer) PushUnbind() {
	p.pushSlot(func(slot uapi.Slot) {
		slot.SetFlags(0)
		slot.PutIntMsg(uapi.MsgUnbind)
	})
}
