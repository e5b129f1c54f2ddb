package provider

import (
	"fmt"

	"github.com/marketroute/marketroute/pkg/model"
)

// Directory is the capability directory: every registered provider, in
// registration order, indexed by key. It is immutable after build.
type Directory struct {
	order []Key
	byKey map[Key]Provider
}

// NewDirectory registers providers in order. A duplicate key is a
// configuration error.
func NewDirectory(providers ...Provider) (*Directory, error) {
	d := &Directory{byKey: make(map[Key]Provider, len(providers))}
	for _, p := range providers {
		k := p.Key()
		if _, dup := d.byKey[k]; dup {
			return nil, fmt.Errorf("duplicate provider key %q", k)
		}
		d.byKey[k] = p
		d.order = append(d.order, k)
	}
	return d, nil
}

func (d *Directory) Get(key Key) (Provider, bool) {
	p, ok := d.byKey[key]
	return p, ok
}

func (d *Directory) Has(key Key) bool {
	_, ok := d.byKey[key]
	return ok
}

// Keys returns all provider keys in registration order.
func (d *Directory) Keys() []Key {
	out := make([]Key, len(d.order))
	copy(out, d.order)
	return out
}

// Supporting returns the keys of providers serving cap, in registration
// order.
func (d *Directory) Supporting(cap model.Capability) []Key {
	var out []Key
	for _, k := range d.order {
		if Supports(d.byKey[k], cap) {
			out = append(out, k)
		}
	}
	return out
}

// Rank returns the registration index of key, used as the tail ranking
// for providers no routing rule mentions.
func (d *Directory) Rank(key Key) int {
	for i, k := range d.order {
		if k == key {
			return i
		}
	}
	return len(d.order)
}

func (d *Directory) Len() int { return len(d.order) }
