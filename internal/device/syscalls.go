package device

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Syscalls abstracts the raw kernel operations a channel handle needs:
// opening the character device, issuing the BIND/SEND/RECV/CLOSE ioctls,
// mapping and unmapping the ring memory, and the eventfd wake mechanism the
// delivery loop polls alongside the device fd. Production code uses
// unixSyscalls; tests inject a fake device (see testing.go in the isc
// package) so channel logic can run without root or a real kernel driver.
type Syscalls interface {
	Open(path string) (fd int, err error)
	Close(fd int) error
	Ioctl(fd int, cmd uintptr, buf []byte) error
	Mmap(fd int, offset int64, length int) ([]byte, error)
	Munmap(b []byte) error
	Eventfd() (fd int, err error)
	Poll(fds []unix.PollFd, timeoutMs int) (int, error)
	ReadEventfd(fd int) (uint64, error)
	WriteEventfd(fd int, v uint64) error
}

// unixSyscalls is the production Syscalls implementation, backed directly
// by golang.org/x/sys/unix the way the teacher's queue runner and control
// path issue raw syscalls against /dev/ublkcN.
type unixSyscalls struct{}

// NewUnixSyscalls returns the real, kernel-backed Syscalls implementation.
func NewUnixSyscalls() Syscalls { return unixSyscalls{} }

func (unixSyscalls) Open(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR, 0)
}

func (unixSyscalls) Close(fd int) error {
	return unix.Close(fd)
}

func (unixSyscalls) Ioctl(fd int, cmd uintptr, buf []byte) error {
	var argp uintptr
	if len(buf) > 0 {
		argp = uintptr(unsafe.Pointer(&buf[0]))
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), cmd, argp)
	if errno != 0 {
		return errno
	}
	return nil
}

func (unixSyscalls) Mmap(fd int, offset int64, length int) ([]byte, error) {
	return unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (unixSyscalls) Munmap(b []byte) error {
	return unix.Munmap(b)
}

func (unixSyscalls) Eventfd() (int, error) {
	return unix.Eventfd(0, 0)
}

func (unixSyscalls) Poll(fds []unix.PollFd, timeoutMs int) (int, error) {
	return unix.Poll(fds, timeoutMs)
}

func (unixSyscalls) ReadEventfd(fd int) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, unix.EIO
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (unixSyscalls) WriteEventfd(fd int, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := unix.Write(fd, buf[:])
	return err
}
