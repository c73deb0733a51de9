package isc

import "github.com/isc-go/isc/internal/constants"

// Re-exported defaults for the public API.
const (
	DefaultDevicePath    = constants.DefaultDevicePath
	DefaultRecvSlotCount = constants.DefaultRecvSlotCount
	MinRecvSlotSize      = constants.MinRecvSlotSize
)
