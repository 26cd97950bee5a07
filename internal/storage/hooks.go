package storage

import (
	"context"
	"sync"

	"stdimage/internal/field"
)

type hooks struct {
	mu   sync.RWMutex
	load map[string][]field.Hook
	save map[string][]field.Hook
	del  map[string][]field.Hook
}

func newHooks() *hooks {
	return &hooks{
		load: make(map[string][]field.Hook),
		save: make(map[string][]field.Hook),
		del:  make(map[string][]field.Hook),
	}
}

func (h *hooks) add(set map[string][]field.Hook, route string, hook field.Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set[route] = append(set[route], hook)
}

// fire runs the hooks of route in registration order and stops at the first
// error.
func (h *hooks) fire(ctx context.Context, set map[string][]field.Hook, ev field.Event, route string) error {
	h.mu.RLock()
	registered := set[route]
	h.mu.RUnlock()

	for _, hook := range registered {
		if err := hook(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) OnLoad(route string, hook field.Hook)   { s.hooks.add(s.hooks.load, route, hook) }
func (s *Storage) OnSave(route string, hook field.Hook)   { s.hooks.add(s.hooks.save, route, hook) }
func (s *Storage) OnDelete(route string, hook field.Hook) { s.hooks.add(s.hooks.del, route, hook) }
