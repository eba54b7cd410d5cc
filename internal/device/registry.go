package device

import (
	"sync"

	"github.com/muurk/tuyalocal/internal/fault"
	"github.com/muurk/tuyalocal/internal/signer"
)

// Entry is a registered device with its cipher context.
// Everything except the IP address is fixed at registration.
type Entry struct {
	mu     sync.RWMutex
	desc   Descriptor
	cipher *signer.Cipher
}

// ID returns the device id
func (e *Entry) ID() string {
	return e.desc.ID
}

// Cipher returns the device's cipher context
func (e *Entry) Cipher() *signer.Cipher {
	return e.cipher
}

// Descriptor returns a copy of the current descriptor
func (e *Entry) Descriptor() Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc
}

// IP returns the current IP address (may be empty)
func (e *Entry) IP() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc.IP
}

func (e *Entry) setIP(ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.desc.IP = ip
}

// Registry indexes devices by id. The set of devices never changes after
// NewRegistry; only addresses do.
type Registry struct {
	byID  map[string]*Entry
	order []*Entry
}

// NewRegistry normalizes each descriptor and builds its cipher context.
// The first descriptor is the default for an empty selector.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fault.Validation("no devices configured")
	}

	r := &Registry{
		byID:  make(map[string]*Entry, len(descs)),
		order: make([]*Entry, 0, len(descs)),
	}

	for _, raw := range descs {
		d, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fault.Validation("duplicate device ID %s", d.ID)
		}

		c, err := signer.NewCipher(d.Key)
		if err != nil {
			e := fault.Validation("invalid encryption key for device with ID %s", d.ID)
			e.Err = err
			return nil, e
		}

		entry := &Entry{desc: d, cipher: c}
		r.byID[d.ID] = entry
		r.order = append(r.order, entry)
	}

	return r, nil
}

// Resolve returns the device for selector. An empty selector picks the first
// registered device.
func (r *Registry) Resolve(selector string) (*Entry, error) {
	if selector == "" {
		return r.order[0], nil
	}
	e, ok := r.byID[selector]
	if !ok {
		return nil, fault.NotFound(selector)
	}
	return e, nil
}

// SetIP records the address of a device
func (r *Registry) SetIP(id, ip string) error {
	e, ok := r.byID[id]
	if !ok {
		return fault.NotFound(id)
	}
	e.setIP(ip)
	return nil
}

// Entries returns the devices in registration order
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns copies of all descriptors in registration order
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, e.Descriptor())
	}
	return out
}

// Len returns the number of registered devices
func (r *Registry) Len() int {
	return len(r.order)
}
