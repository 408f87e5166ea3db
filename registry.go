// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import "sync"

// KeyRegistry maps exact keys to ordered consumer lists.
//
// Each key holds an immutable slice that Register and Cancel replace
// wholesale, so a slice returned by Select is never mutated afterwards.
type KeyRegistry struct {
	mu      sync.RWMutex
	entries map[any][]*Registration
	views   map[any][]Consumer
}

// Registration is a consumer bound to a key. Cancel removes it.
type Registration struct {
	registry *KeyRegistry
	key      any
	consumer Consumer
	once     sync.Once
}

// NewKeyRegistry creates an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{
		entries: make(map[any][]*Registration),
		views:   make(map[any][]Consumer),
	}
}

// Register appends c to the consumers of key. Panics if key is not
// comparable or c is nil.
func (r *KeyRegistry) Register(key any, c Consumer) *Registration {
	if c == nil {
		panic("reactor: consumer is required")
	}
	reg := &Registration{registry: r, key: key, consumer: c}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.entries[key]
	regs := make([]*Registration, len(old), len(old)+1)
	copy(regs, old)
	r.store(key, append(regs, reg))
	return reg
}

// Select returns the consumers of key in registration order.
func (r *KeyRegistry) Select(key any) []Consumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.views[key]
}

// Len returns the number of consumers registered for key.
func (r *KeyRegistry) Len(key any) int {
	return len(r.Select(key))
}

// Key returns the key the registration is bound to.
func (reg *Registration) Key() any {
	return reg.key
}

// Cancel unregisters the consumer. Idempotent.
func (reg *Registration) Cancel() {
	reg.once.Do(func() {
		reg.registry.remove(reg)
	})
}

func (r *KeyRegistry) remove(reg *Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.entries[reg.key]
	regs := make([]*Registration, 0, len(old))
	for _, e := range old {
		if e != reg {
			regs = append(regs, e)
		}
	}
	r.store(reg.key, regs)
}

// store installs regs for key (mu held).
func (r *KeyRegistry) store(key any, regs []*Registration) {
	if len(regs) == 0 {
		delete(r.entries, key)
		delete(r.views, key)
		return
	}
	view := make([]Consumer, len(regs))
	for i, e := range regs {
		view[i] = e.consumer
	}
	r.entries[key] = regs
	r.views[key] = view
}
