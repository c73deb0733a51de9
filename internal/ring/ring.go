// Package ring implements the fixed-capacity, slot-indexed SPSC ring each
// bound direction of a channel uses: an array of equally-sized slots inside
// an mmap'd region, with independent write and read cursors that advance
// modulo the slot count. This replaces the original driver's intrusive
// linked list (struct list) with plain array indexing, per the one ring
// owner, one cursor each invariant a Go rewrite should make explicit rather
// than implicit in pointer chasing.
package ring

import "github.com/isc-go/isc/internal/uapi"

// Ring is a view over an mmap'd byte region, sliced into SlotCount
// fixed-size slots. A Ring is owned by exactly one side of the
// conversation (the caller for the send ring, the delivery loop for the
// recv ring) and its cursors are never touched concurrently from two
// goroutines — callers needing cross-goroutine visibility of a cursor value
// must synchronize externally.
type Ring struct {
	mem       []byte
	slotSize  uint16
	slotCount uint16
	stride    int
	wp        uint32
	rp        uint32
}

// New wraps mem (as returned by mmap) as a ring of slotCount slots, each
// holding slotSize bytes of payload beyond the uapi.SlotHeaderSize header.
func New(mem []byte, slotSize, slotCount uint16) *Ring {
	return &Ring{
		mem:       mem,
		slotSize:  slotSize,
		slotCount: slotCount,
		stride:    uapi.SlotHeaderSize + int(slotSize),
	}
}

// SlotSize returns the payload capacity of one slot.
func (r *Ring) SlotSize() uint16 { return r.slotSize }

// SlotCount returns the number of slots in the ring.
func (r *Ring) SlotCount() uint16 { return r.slotCount }

func (r *Ring) slotAt(idx uint16) uapi.Slot {
	off := int(idx) * r.stride
	return uapi.Slot(r.mem[off : off+r.stride])
}

// PeekWrite returns the slot at the current write cursor without advancing
// it, for the owner to populate in place.
func (r *Ring) PeekWrite() uapi.Slot {
	return r.slotAt(uint16(r.wp % uint32(r.slotCount)))
}

// PeekRead returns the slot at the current read cursor without advancing
// it, for the owner to inspect in place.
func (r *Ring) PeekRead() uapi.Slot {
	return r.slotAt(uint16(r.rp % uint32(r.slotCount)))
}

// AdvanceWrite moves the write cursor to the next slot.
func (r *Ring) AdvanceWrite() { r.wp++ }

// AdvanceRead moves the read cursor to the next slot.
func (r *Ring) AdvanceRead() { r.rp++ }

// WriteCursor returns the current write cursor (monotonic, not yet reduced
// modulo SlotCount).
func (r *Ring) WriteCursor() uint32 { return r.wp }

// ReadCursor returns the current read cursor (monotonic, not yet reduced
// modulo SlotCount).
func (r *Ring) ReadCursor() uint32 { return r.rp }

// Bytes returns the raw backing region, for Destroy/munmap.
func (r *Ring) Bytes() []byte { return r.mem }

// Destroy releases the ring's reference to its backing memory. It does not
// unmap the memory itself; callers unmap via the same mechanism (mmap) that
// produced mem, then call Destroy to drop the Ring's reference.
func (r *Ring) Destroy() { r.mem = nil }
