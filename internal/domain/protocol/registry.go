package protocol

import (
	"fmt"
	"sync"
)

type variant struct {
	version string
	marker  string
	ctor    Constructor
}

// Registry maps detected protocol versions to handler constructors.
// Detection walks variants in registration order and picks the first whose
// marker query parameter is present in the handshake; otherwise the default
// variant is used.
type Registry struct {
	mu       sync.RWMutex
	variants []variant
	def      string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a protocol variant. marker is the handshake query parameter
// that identifies it; an empty marker makes the variant reachable only as
// the default. Registering an existing version replaces it.
func (r *Registry) Register(version, marker string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.variants {
		if r.variants[i].version == version {
			r.variants[i] = variant{version: version, marker: marker, ctor: ctor}
			return
		}
	}
	r.variants = append(r.variants, variant{version: version, marker: marker, ctor: ctor})
}

// SetDefault selects the variant used when no marker matches.
func (r *Registry) SetDefault(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.variants {
		if v.version == version {
			r.def = version
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownVersion, version)
}

// Versions returns the registered versions in registration order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v.version)
	}
	return out
}

// Detect constructs the handler for socket's handshake and reports which
// version was selected.
func (r *Registry) Detect(socket Socket) (Handler, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if hs := socket.Handshake(); hs != nil && hs.Query != nil {
		for _, v := range r.variants {
			if v.marker == "" {
				continue
			}
			if _, ok := hs.Query[v.marker]; ok {
				return v.ctor(socket), v.version, nil
			}
		}
	}

	for _, v := range r.variants {
		if v.version == r.def {
			return v.ctor(socket), v.version, nil
		}
	}
	return nil, "", ErrUnknownVersion
}
