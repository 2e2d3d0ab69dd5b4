package webview

import "sync"

// Registry 跟踪已绑定的控制器；最近绑定的为可见实例
// Registry tracks bound controllers; the most recently resolved one is the visible instance
type Registry struct {
	mu    sync.Mutex
	items []*Controller
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) add(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c)
	r.items = append(r.items, c)
}

func (r *Registry) remove(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c)
}

func (r *Registry) removeLocked(c *Controller) {
	for i, it := range r.items {
		if it == c {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return
		}
	}
}

// Visible returns the most recently resolved controller that is still bound.
func (r *Registry) Visible() (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil, false
	}
	return r.items[len(r.items)-1], true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
