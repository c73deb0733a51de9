// Package constants holds the default attribute values and device paths the
// channel runtime falls back to when a caller leaves them unspecified.
package constants

// DefaultDevicePath is the character device every channel binds against
// unless Options.DevicePath overrides it.
const DefaultDevicePath = "/dev/isc"

// DefaultRecvSlotCount is used when a caller opens a channel without
// specifying a recv Attr.
const DefaultRecvSlotCount = 8

// MinRecvSlotSize is the smallest recv slot payload capacity a channel will
// ever bind with: large enough to carry an internal control message
// (BOUND/UNBIND), which has no payload of its own beyond the id/len header.
const MinRecvSlotSize = 4
