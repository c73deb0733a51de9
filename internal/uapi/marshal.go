package uapi

import "encoding/binary"

// MarshalBind encodes a Bind into a fresh BindSize-byte little-endian
// buffer suitable for passing to the BIND ioctl.
func MarshalBind(b *Bind) []byte {
	buf := make([]byte, BindSize)
	PutBind(buf, b)
	return buf
}

// PutBind encodes b into buf in place, so a caller can reuse the same
// ioctl argument buffer across the request and the driver's in-place reply.
func PutBind(buf []byte, b *Bind) {
	_ = buf[BindSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], b.UID)
	binary.LittleEndian.PutUint16(buf[4:6], b.SlotSize)
	binary.LittleEndian.PutUint16(buf[6:8], b.SlotCount)
	binary.LittleEndian.PutUint16(buf[8:10], b.Stat)
	binary.LittleEndian.PutUint16(buf[10:12], b.Dir)
	binary.LittleEndian.PutUint32(buf[12:16], b.Size)
	binary.LittleEndian.PutUint64(buf[16:24], b.Mem)
}

// UnmarshalBind decodes buf (as left by the BIND ioctl) into b.
func UnmarshalBind(buf []byte, b *Bind) {
	_ = buf[BindSize-1]
	b.UID = binary.LittleEndian.Uint32(buf[0:4])
	b.SlotSize = binary.LittleEndian.Uint16(buf[4:6])
	b.SlotCount = binary.LittleEndian.Uint16(buf[6:8])
	b.Stat = binary.LittleEndian.Uint16(buf[8:10])
	b.Dir = binary.LittleEndian.Uint16(buf[10:12])
	b.Size = binary.LittleEndian.Uint32(buf[12:16])
	b.Mem = binary.LittleEndian.Uint64(buf[16:24])
}

// MarshalSendRecv encodes a SendRecv into a fresh 4-byte buffer for the
// SEND/RECV ioctls.
func MarshalSendRecv(s *SendRecv) []byte {
	buf := make([]byte, SendRecvSize)
	binary.LittleEndian.PutUint16(buf[0:2], s.Seq)
	binary.LittleEndian.PutUint16(buf[2:4], s.Num)
	return buf
}

// UnmarshalSendRecv decodes buf into s.
func UnmarshalSendRecv(buf []byte, s *SendRecv) {
	_ = buf[SendRecvSize-1]
	s.Seq = binary.LittleEndian.Uint16(buf[0:2])
	s.Num = binary.LittleEndian.Uint16(buf[2:4])
}

// Slot is a view over one ring slot's raw bytes: a SlotHeaderSize header
// followed by the slot's payload capacity. It never copies; every accessor
// reads or writes directly into the backing mmap region, the same way the
// driver shares memory with the peer.
type Slot []byte

func (s Slot) Flags() uint32     { return binary.LittleEndian.Uint32(s[0:4]) }
func (s Slot) SetFlags(v uint32) { binary.LittleEndian.PutUint32(s[0:4], v) }

func (s Slot) Seq() uint16     { return binary.LittleEndian.Uint16(s[4:6]) }
func (s Slot) SetSeq(v uint16) { binary.LittleEndian.PutUint16(s[4:6], v) }

func (s Slot) Len() uint16     { return binary.LittleEndian.Uint16(s[6:8]) }
func (s Slot) SetLen(v uint16) { binary.LittleEndian.PutUint16(s[6:8], v) }

func (s Slot) RC() int32     { return int32(binary.LittleEndian.Uint32(s[8:12])) }
func (s Slot) SetRC(v int32) { binary.LittleEndian.PutUint32(s[8:12], uint32(v)) }

// IsUser reports whether FlagUser is set, i.e. this slot carries a caller
// payload rather than an internal BOUND/UNBIND control message.
func (s Slot) IsUser() bool { return s.Flags()&FlagUser != 0 }

// Payload returns the slot's data region, capacity-sized (not Len-sized) so
// callers can write up to the slot's full capacity.
func (s Slot) Payload() []byte { return s[SlotHeaderSize:] }

// IntMsgID reads the internal control message id out of Payload(), valid
// only when IsUser() is false.
func (s Slot) IntMsgID() uint16 { return binary.LittleEndian.Uint16(s.Payload()[0:2]) }

// IntMsgLen reads the internal control message's length field.
func (s Slot) IntMsgLen() uint16 { return binary.LittleEndian.Uint16(s.Payload()[2:4]) }

// PutIntMsg writes an internal control message header into Payload().
func (s Slot) PutIntMsg(id uint16) {
	binary.LittleEndian.PutUint16(s.Payload()[0:2], id)
	binary.LittleEndian.PutUint16(s.Payload()[2:4], 0)
}
