package effect

import (
	"fmt"

	"github.com/gogpu/gpucontext"
)

// Factory creates a new effect instance.
type Factory func() Handle

// Registry maps selectors to effect factories.
type Registry struct {
	r *gpucontext.Registry[Handle]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{r: gpucontext.NewRegistry[Handle]()}
}

// Register adds or replaces the factory for sel.
func (r *Registry) Register(sel Selector, f Factory) {
	r.r.Register(string(sel), f)
}

// Has reports whether a factory is registered for sel.
func (r *Registry) Has(sel Selector) bool {
	return r.r.Has(string(sel))
}

// Create instantiates the effect registered under sel.
func (r *Registry) Create(sel Selector) (Handle, error) {
	if !r.r.Has(string(sel)) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, sel)
	}
	h := r.r.Get(string(sel))
	if h == nil {
		return nil, fmt.Errorf("%w: %s: factory returned nil", ErrUnknownSelector, sel)
	}
	return h, nil
}

// Available returns the registered selector names.
func (r *Registry) Available() []string {
	return r.r.Available()
}
