// Package uapi mirrors the kernel UAPI surface of the isc character device:
// the BIND/SEND/RECV/CLOSE ioctl numbers, the wire structs exchanged with
// the driver, and the slot layout of the mmap'd send/recv rings.
package uapi

// ISCIoctlBase is the ioctl type byte the driver registers its commands under.
const ISCIoctlBase = 'X'

// BindDir selects which direction a BIND ioctl establishes.
type BindDir uint16

const (
	// DirSendUToK binds the user-to-kernel (send) ring.
	DirSendUToK BindDir = 0
	// DirRecvKToU binds the kernel-to-user (recv) ring.
	DirRecvKToU BindDir = 1
)

// Internal control message ids carried in flags==0 slots.
const (
	MsgBound  uint16 = 0x0001
	MsgUnbind uint16 = 0x0002
)

// FlagUser marks a slot as holding a caller payload rather than an internal
// control message.
const FlagUser uint32 = 0x00000001

// ioctl encoding constants, classic Linux _IOC_* bit layout.
const (
	iocWrite     = 1
	iocRead      = 2
	iocSizeBits  = 14
	iocDirBits   = 2
	iocTypeBits  = 8
	iocNRBits    = 8
	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// IoctlEncode reproduces the kernel's _IOC(dir, type, nr, size) macro.
func IoctlEncode(dir, typ, nr, size uint32) uint32 {
	return (dir << iocDirShift) |
		(size << iocSizeShift) |
		(typ << iocTypeShift) |
		(nr << iocNRShift)
}

// BindCmd, SendCmd, RecvCmd, CloseCmd are the four ioctl command numbers the
// device handle issues, parameterized by the actual wire struct sizes so a
// change in struct layout can't silently desync the ioctl number from the
// buffer size the kernel expects.
func BindCmd() uintptr {
	return uintptr(IoctlEncode(iocRead|iocWrite, ISCIoctlBase, 0, BindSize))
}

func SendCmd() uintptr {
	return uintptr(IoctlEncode(iocRead|iocWrite, ISCIoctlBase, 1, SendRecvSize))
}

func RecvCmd() uintptr {
	return uintptr(IoctlEncode(iocRead|iocWrite, ISCIoctlBase, 2, SendRecvSize))
}

func CloseCmd() uintptr {
	return uintptr(IoctlEncode(iocRead|iocWrite, ISCIoctlBase, 3, 4))
}
