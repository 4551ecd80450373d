package providers

import (
	"fmt"
	"sort"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

// Registry maps a vendor to its adapter. Adding a vendor means registering one
// more Adapter; the task loop never branches on vendor.
type Registry struct {
	adapters map[models.Vendor]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Vendor]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Vendor()] = a
	}
	return r
}

func (r *Registry) Get(vendor models.Vendor) (Adapter, error) {
	a, ok := r.adapters[vendor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
	return a, nil
}

func (r *Registry) Vendors() []models.Vendor {
	out := make([]models.Vendor, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
