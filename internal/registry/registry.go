package registry

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
)

// Entry pairs a handle with the descriptor it was created from.
type Entry struct {
	Handle     Handle
	Descriptor body.Descriptor
}

// Registry indexes live objects by name. It is a directory, not an owner:
// removing an entry never disposes the handle.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *log.Logger
}

func New(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		entries: make(map[string]Entry),
		logger:  logger.WithPrefix("registry"),
	}
}

// Register indexes a handle under name. A duplicate name is overwritten and
// logged; the last writer wins.
func (r *Registry) Register(name string, h Handle, d body.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		r.logger.Warn("duplicate name, replacing", "name", name)
	}
	r.entries[name] = Entry{Handle: h, Descriptor: d}
}

// Update rewrites the descriptor stored under name in place and reports
// whether the name was registered.
func (r *Registry) Update(name string, fn func(*body.Descriptor)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return false
	}
	fn(&e.Descriptor)
	r.entries[name] = e
	return true
}

// Unregister drops the mapping and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Handle returns the handle registered under name.
func (r *Registry) Handle(name string) (Handle, bool) {
	e, ok := r.Lookup(name)
	return e.Handle, ok
}

// ApplyPose moves the named handle in place. Nil arguments are left
// unchanged. An absent name is a no-op: the object may already be gone.
func (r *Registry) ApplyPose(name string, pos *mgl64.Vec3, quat *mgl64.Quat) bool {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("pose for unknown object", "name", name)
		return false
	}
	if pos != nil {
		e.Handle.SetPosition(*pos)
	}
	if quat != nil {
		e.Handle.SetOrientation(*quat)
	}
	return true
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]Entry)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
