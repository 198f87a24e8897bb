package handler

import (
	"fmt"
	"sort"
	"sync"
)

// Options are handler-specific settings, keyed by option id.
type Options map[string]string

// Factory builds a handler instance from its options.
type Factory func(opts Options) (any, error)

// Descriptor documents a registered handler for --help-handlers.
type Descriptor struct {
	Name    string
	Summary string
	Mode    Mode

	// ConcurrencySafe reports whether the handler may run in concurrent mode.
	ConcurrencySafe bool
	Options         map[string]string
}

var (
	regMu       sync.RWMutex
	factories   = map[string]Factory{}
	descriptors = map[string]Descriptor{}
)

// Register adds a factory under name, replacing any previous registration.
func Register(name string, f Factory, d Descriptor) {
	regMu.Lock()
	defer regMu.Unlock()
	if d.Name == "" {
		d.Name = name
	}
	factories[name] = f
	descriptors[name] = d
}

// DescriptorFor returns the descriptor registered under name.
func DescriptorFor(name string) (Descriptor, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	d, ok := descriptors[name]
	return d, ok
}

// Names returns the registered handler names, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the named handler and binds it.
func New(name string, opts Options) (Binding, error) {
	regMu.RLock()
	f, ok := factories[name]
	regMu.RUnlock()
	if !ok {
		return Binding{}, fmt.Errorf("unknown handler %q (available: %v)", name, Names())
	}
	h, err := f(opts)
	if err != nil {
		return Binding{}, fmt.Errorf("build handler %s: %w", name, err)
	}
	return Bind(name, h)
}
