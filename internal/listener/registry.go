// Package listener implements the channel's listener registry: an ordered
// collection of (capabilities, arg) subscriptions, protected by a single
// mutex, that the delivery loop broadcasts bound/unbind/message events
// through. This restates the original driver's isc_add_listener/
// isc_rm_listener/isc_notify_listener logic with a Go slice in place of the
// intrusive circular list the C source walks.
package listener

import (
	"errors"
	"sync"
)

var (
	// ErrNoCapabilities is returned by Add when caps is nil or declares no
	// callbacks at all.
	ErrNoCapabilities = errors.New("listener: capabilities must implement at least one callback")
	// ErrDuplicate is returned by Add when the exact (caps, arg) pair is
	// already registered.
	ErrDuplicate = errors.New("listener: already registered")
	// ErrNotFound is returned by Remove when no matching (caps, arg) pair
	// is registered.
	ErrNotFound = errors.New("listener: not registered")
)

// Capabilities is the set of callbacks a listener subscribes with. Two
// registrations are the same listener only if they share the same
// *Capabilities pointer and an == comparable arg — mirroring the original
// C API's identity-by-(ops pointer, void *arg) pair. arg must therefore be
// comparable (a pointer, an integer id, etc.); an uncomparable arg (a slice,
// map, or func) panics in Add/Remove when it is compared against an entry
// with the same *Capabilities pointer and an arg of the same type.
type Capabilities struct {
	// Bound is invoked when the channel's peer becomes ready to receive.
	Bound func(arg any)
	// Unbind is invoked when the channel's peer disconnects.
	Unbind func(arg any)
	// Got is invoked for every user payload the delivery loop dispatches.
	// Its return value is OR'd into the aggregated reply rc.
	Got func(payload []byte, arg any) int32
}

type entry struct {
	caps *Capabilities
	arg  any
}

// Registry is an ordered, mutex-guarded set of listener subscriptions. The
// zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers caps/arg. It returns ErrNoCapabilities if caps declares no
// callbacks, ErrDuplicate if the pair is already registered.
func (r *Registry) Add(caps *Capabilities, arg any) error {
	if caps == nil || (caps.Bound == nil && caps.Unbind == nil && caps.Got == nil) {
		return ErrNoCapabilities
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.caps == caps && e.arg == arg {
			return ErrDuplicate
		}
	}
	r.entries = append(r.entries, entry{caps: caps, arg: arg})
	return nil
}

// Remove unregisters caps/arg, returning ErrNotFound if no such pair is
// registered.
func (r *Registry) Remove(caps *Capabilities, arg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.caps == caps && e.arg == arg {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// BroadcastBound calls every registered Bound callback, in registration
// order, under the registry lock.
func (r *Registry) BroadcastBound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.caps.Bound != nil {
			e.caps.Bound(e.arg)
		}
	}
}

// BroadcastUnbind calls every registered Unbind callback, in registration
// order, under the registry lock.
func (r *Registry) BroadcastUnbind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.caps.Unbind != nil {
			e.caps.Unbind(e.arg)
		}
	}
}

// BroadcastMessage calls every registered Got callback with payload, in
// registration order, under the registry lock, and returns the
// bitwise-OR of their return values. With no listeners registered it
// returns -1, matching the original driver's "nobody home" reply code.
func (r *Registry) BroadcastMessage(payload []byte) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return -1
	}
	var rc int32
	for _, e := range r.entries {
		if e.caps.Got != nil {
			rc |= e.caps.Got(payload, e.arg)
		}
	}
	return rc
}

// Len reports the current number of registered listeners, for tests and
// diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
