// Package delivery implements the per-channel delivery worker: a goroutine
// parked in poll(2) over the device fd and a wake eventfd, draining one
// recv-ring slot per readable event and dispatching it to a handler before
// acking it back to the driver.
package delivery

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/isc-go/isc/internal/logging"
	"github.com/isc-go/isc/internal/ring"
	"github.com/isc-go/isc/internal/uapi"
	"golang.org/x/sys/unix"
)

// Poller is the subset of the transport the loop needs: poll(2) and
// draining the wake eventfd's counter. Defined here (rather than importing
// internal/device) so delivery has no dependency on the device package —
// any Syscalls implementation satisfies this by structural typing.
type Poller interface {
	Poll(fds []unix.PollFd, timeoutMs int) (int, error)
	ReadEventfd(fd int) (uint64, error)
}

// SlotHandler processes one recv slot in place — including setting its rc
// field — before the loop acks it back to the driver.
type SlotHandler func(slot uapi.Slot)

// Config wires a Loop to one channel's transport.
type Config struct {
	DeviceFD int
	WakeFD   int
	RecvRing *ring.Ring
	Handler  SlotHandler
	Ack      func(seq uint16) error
	Wake     func() error // writes one token to WakeFD
	Poller   Poller
	Logger   *logging.Logger
}

// Loop drains one channel's recv ring, one slot per wake.
type Loop struct {
	deviceFD int
	wakeFD   int
	recvRing *ring.Ring
	handler  SlotHandler
	ack      func(seq uint16) error
	wake     func() error
	poller   Poller
	logger   *logging.Logger

	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// New constructs a Loop; call Start to begin draining.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Loop{
		deviceFD: cfg.DeviceFD,
		wakeFD:   cfg.WakeFD,
		recvRing: cfg.RecvRing,
		handler:  cfg.Handler,
		ack:      cfg.Ack,
		wake:     cfg.Wake,
		poller:   cfg.Poller,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start spawns the delivery goroutine. It is pinned to its OS thread for
// the lifetime of the loop, mirroring the teacher's per-queue worker
// thread pinning: a dedicated thread keeps poll(2) latency predictable and
// avoids the Go scheduler migrating a long-parked syscall across Ms.
func (l *Loop) Start() {
	l.running.Store(true)
	go l.run()
}

// Stop signals the loop to exit by writing a wake token, then waits for it
// to observe the running flag go false and return.
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.running.Store(false)
		if err := l.wake(); err != nil {
			l.logger.Warn("delivery: wake write on stop failed", "err", err)
		}
	})
	<-l.done
}

func (l *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	fds := []unix.PollFd{
		{Fd: int32(l.deviceFD), Events: unix.POLLIN},
		{Fd: int32(l.wakeFD), Events: unix.POLLIN},
	}

	for {
		fds[0].Revents = 0
		fds[1].Revents = 0

		n, err := l.poller.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.logger.Warn("delivery: poll failed", "err", err)
			continue
		}
		if n <= 0 {
			continue
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			l.poller.ReadEventfd(l.wakeFD)
			if !l.running.Load() {
				return
			}
			continue
		}

		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		slot := l.recvRing.PeekRead()
		l.handler(slot)

		seq := slot.Seq()
		if err := l.ack(seq); err != nil {
			l.logger.Warn("delivery: ack failed, slot left unadvanced", "seq", seq, "err", err)
			continue
		}
		l.recvRing.AdvanceRead()
	}
}
