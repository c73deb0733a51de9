package uapi

import "unsafe"

// Bind is the isc_bind wire struct exchanged with the BIND ioctl. Uid and
// SlotSize/SlotCount/Dir are set by the caller; Stat, Size and Mem are
// filled in by the driver on return.
type Bind struct {
	UID       uint32
	SlotSize  uint16
	SlotCount uint16
	Stat      uint16
	Dir       uint16
	Size      uint32
	Mem       uint64
}

// BindSize is sizeof(struct isc_bind): 4+2+2+2+2+4+8.
const BindSize = 24

var _ [BindSize]byte = [unsafe.Sizeof(Bind{})]byte{}

// SendRecv is the isc_send / isc_recv wire struct: both carry the same
// {seq, num} pair, one slot per call.
type SendRecv struct {
	Seq uint16
	Num uint16
}

// SendRecvSize is sizeof(struct isc_send) == sizeof(struct isc_recv).
const SendRecvSize = 4

var _ [SendRecvSize]byte = [unsafe.Sizeof(SendRecv{})]byte{}

// SlotHeaderSize is sizeof(struct isc_msg) minus its flexible array member:
// flags(4) + seq(2) + len(2) + rc(4).
const SlotHeaderSize = 12

// IntMsgHeaderSize is sizeof(struct isc_int_msg): id(2) + len(2).
const IntMsgHeaderSize = 4
