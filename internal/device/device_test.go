package device

import (
	"errors"
	"testing"

	"github.com/isc-go/isc/internal/uapi"
	"golang.org/x/sys/unix"
)

// fakeSyscalls is a minimal in-memory Syscalls double used to exercise the
// open/bind/mmap/close sequence without a real character device.
type fakeSyscalls struct {
	openErr   error
	bindStat  map[uapi.BindDir]uint16
	mem       map[uapi.BindDir][]byte
	closed    []int
	unmapped  int
	ioctlLog  []uintptr
	lastDir   uapi.BindDir
	eventfdFD int
}

func newFakeSyscalls() *fakeSyscalls {
	return &fakeSyscalls{
		bindStat:  map[uapi.BindDir]uint16{},
		mem:       map[uapi.BindDir][]byte{},
		eventfdFD: 100,
	}
}

func (f *fakeSyscalls) Open(path string) (int, error) {
	if f.openErr != nil {
		return 0, f.openErr
	}
	return 3, nil
}

func (f *fakeSyscalls) Close(fd int) error {
	f.closed = append(f.closed, fd)
	return nil
}

func (f *fakeSyscalls) Ioctl(fd int, cmd uintptr, buf []byte) error {
	f.ioctlLog = append(f.ioctlLog, cmd)
	switch cmd {
	case uapi.BindCmd():
		var b uapi.Bind
		uapi.UnmarshalBind(buf, &b)
		dir := uapi.BindDir(b.Dir)
		f.lastDir = dir
		size := (uint32(b.SlotSize) + uapi.SlotHeaderSize) * uint32(b.SlotCount)
		f.mem[dir] = make([]byte, size)
		b.Size = size
		b.Mem = 0
		b.Stat = f.bindStat[dir]
		uapi.PutBind(buf, &b)
		return nil
	case uapi.SendCmd(), uapi.RecvCmd(), uapi.CloseCmd():
		return nil
	}
	return errors.New("unexpected ioctl")
}

func (f *fakeSyscalls) Mmap(fd int, offset int64, length int) ([]byte, error) {
	return f.mem[f.lastDir], nil
}

func (f *fakeSyscalls) Munmap(b []byte) error {
	f.unmapped++
	return nil
}

func (f *fakeSyscalls) Eventfd() (int, error) { return f.eventfdFD, nil }

func (f *fakeSyscalls) Poll(fds []unix.PollFd, timeoutMs int) (int, error) { return 0, nil }

func (f *fakeSyscalls) ReadEventfd(fd int) (uint64, error) { return 0, nil }

func (f *fakeSyscalls) WriteEventfd(fd int, v uint64) error { return nil }

func TestOpenBindsRecvOnly(t *testing.T) {
	sys := newFakeSyscalls()
	sys.bindStat[uapi.DirRecvKToU] = 1

	h, err := Open(Config{
		UID:        7,
		Recv:       &Attr{SlotSize: 4, SlotCount: 8},
		DevicePath: "/dev/isc",
		Syscalls:   sys,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if h.Direction() != DirRecv {
		t.Fatalf("Direction() = %v, want DirRecv", h.Direction())
	}
	if h.SendRing() != nil {
		t.Fatal("SendRing() should be nil without a send Attr")
	}
	if !h.RecvBoundAtOpen() {
		t.Fatal("RecvBoundAtOpen() should be true")
	}
	if h.RecvRing().SlotCount() != 8 {
		t.Fatalf("RecvRing().SlotCount() = %d, want 8", h.RecvRing().SlotCount())
	}
}

func TestOpenBindsSendAndRecv(t *testing.T) {
	sys := newFakeSyscalls()
	h, err := Open(Config{
		UID:        1,
		Send:       &Attr{SlotSize: 64, SlotCount: 4},
		Recv:       &Attr{SlotSize: 4, SlotCount: 8},
		DevicePath: "/dev/isc",
		Syscalls:   sys,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if h.Direction() != DirSend|DirRecv {
		t.Fatalf("Direction() = %v, want DirSend|DirRecv", h.Direction())
	}
	if h.SendRing() == nil {
		t.Fatal("SendRing() should be non-nil with a send Attr")
	}
}

func TestOpenPropagatesOpenError(t *testing.T) {
	sys := newFakeSyscalls()
	sys.openErr = errors.New("permission denied")

	_, err := Open(Config{UID: 1, Recv: &Attr{SlotSize: 4, SlotCount: 8}, Syscalls: sys})
	if err == nil {
		t.Fatal("Open() should fail when the device fd can't be opened")
	}
}

func TestCloseUnmapsAndClosesFDs(t *testing.T) {
	sys := newFakeSyscalls()
	h, err := Open(Config{
		UID:      1,
		Send:     &Attr{SlotSize: 8, SlotCount: 2},
		Recv:     &Attr{SlotSize: 4, SlotCount: 2},
		Syscalls: sys,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sys.unmapped != 2 {
		t.Fatalf("expected 2 rings unmapped (send + recv), got %d", sys.unmapped)
	}
	if len(sys.closed) != 2 {
		t.Fatalf("expected 2 fds closed (wake + device), got %d", len(sys.closed))
	}
}

func TestSendAndAckIssueExpectedIoctls(t *testing.T) {
	sys := newFakeSyscalls()
	h, err := Open(Config{
		UID:      1,
		Send:     &Attr{SlotSize: 8, SlotCount: 2},
		Recv:     &Attr{SlotSize: 4, SlotCount: 2},
		Syscalls: sys,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := h.SubmitSend(0); err != nil {
		t.Fatalf("SubmitSend() error = %v", err)
	}
	if err := h.Ack(0); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	var sawSend, sawRecv bool
	for _, cmd := range sys.ioctlLog {
		if cmd == uapi.SendCmd() {
			sawSend = true
		}
		if cmd == uapi.RecvCmd() {
			sawRecv = true
		}
	}
	if !sawSend || !sawRecv {
		t.Fatalf("expected both SEND and RECV ioctls issued, log = %v", sys.ioctlLog)
	}
}
