package device

import (
	"sync"

	iolink "github.com/Raghava-Ch/goiolink"
)

// Handle identifies one registered device port
type Handle uint8

// Registry tracks the device ports of one application. Handles are
// chosen by the caller, there is no global registration.
type Registry struct {
	mu      sync.Mutex
	devices map[Handle]*Device
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[Handle]*Device)}
}

// Register adds a device under the given handle.
// An occupied handle is refused.
func (r *Registry) Register(handle Handle, device *Device) error {
	if device == nil {
		return iolink.ErrIllegalArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[handle]; ok {
		return iolink.ErrStateConflict
	}
	r.devices[handle] = device
	return nil
}

// Lookup returns the device registered under the handle or nil
func (r *Registry) Lookup(handle Handle) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[handle]
}

// Remove drops the registration. The device itself is not stopped.
func (r *Registry) Remove(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, handle)
}

// Handles returns the currently registered handles
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]Handle, 0, len(r.devices))
	for handle := range r.devices {
		handles = append(handles, handle)
	}
	return handles
}
