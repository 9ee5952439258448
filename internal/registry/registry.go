// Package registry keeps the templates known to tagfill, keyed by id, and
// notifies watchers when they change.
package registry

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/markup"
)

// Source tells where a template was loaded from.
type Source string

const (
	SourceFile  Source = "file"
	SourceStore Source = "store"
)

// TemplateInfo holds a registered template and its metadata.
type TemplateInfo struct {
	ID       string
	FilePath string
	Source   Source
	// Root is the template element. It is shared with renders and must not
	// be modified after registration.
	Root    *markup.Node
	Hash    string
	LastMod time.Time
	// Inserts lists the template ids Root inserts, in document order.
	Inserts []string
}

// TemplateEvent represents a change in the template registry
type TemplateEvent struct {
	Type      EventType
	Template  *TemplateInfo
	Timestamp time.Time
}

// EventType represents the type of template event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (t EventType) String() string {
	switch t {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// watcherBuffer is the capacity of each Watch channel. Events are dropped
// for watchers whose buffer is full.
const watcherBuffer = 100

// TemplateRegistry manages all registered templates. It implements
// engine.Registry and is safe for concurrent use.
type TemplateRegistry struct {
	templates map[string]*TemplateInfo
	mutex     sync.RWMutex
	watchers  []chan TemplateEvent
}

var _ engine.Registry = (*TemplateRegistry)(nil)

// NewTemplateRegistry creates a new template registry
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*TemplateInfo),
		watchers:  make([]chan TemplateEvent, 0),
	}
}

// Register adds or updates a template. Inserts is derived from Root when
// unset. Re-registering a template with the same hash and location is a
// no-op and reports false.
func (r *TemplateRegistry) Register(info *TemplateInfo) bool {
	if info.Inserts == nil && info.Root != nil {
		info.Inserts = engine.Inserts(info.Root)
	}
	if info.LastMod.IsZero() {
		info.LastMod = time.Now()
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if existing, exists := r.templates[info.ID]; exists {
		if existing.Hash != "" && existing.Hash == info.Hash &&
			existing.FilePath == info.FilePath && existing.Source == info.Source {
			return false
		}
		eventType = EventTypeUpdated
	}

	r.templates[info.ID] = info
	r.notify(eventType, info)
	return true
}

// Get retrieves a template by id
func (r *TemplateRegistry) Get(id string) (*TemplateInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	info, exists := r.templates[id]
	return info, exists
}

// Lookup implements engine.Registry.
func (r *TemplateRegistry) Lookup(id string) (*markup.Node, bool) {
	info, ok := r.Get(id)
	if !ok || info.Root == nil {
		return nil, false
	}
	return info.Root, true
}

// GetAll returns all registered templates ordered by id
func (r *TemplateRegistry) GetAll() []*TemplateInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*TemplateInfo, 0, len(r.templates))
	for _, info := range r.templates {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// IDs returns the registered ids in sorted order.
func (r *TemplateRegistry) IDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Remove removes a template from the registry
func (r *TemplateRegistry) Remove(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info, exists := r.templates[id]
	if !exists {
		return false
	}

	delete(r.templates, id)
	r.notify(EventTypeRemoved, info)
	return true
}

// RemoveByPath removes every template loaded from path and returns their
// ids in sorted order.
func (r *TemplateRegistry) RemoveByPath(path string) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var removed []string
	for id, info := range r.templates {
		if info.FilePath == path {
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	for _, id := range removed {
		info := r.templates[id]
		delete(r.templates, id)
		r.notify(EventTypeRemoved, info)
	}
	return removed
}

// notify must be called with the write lock held.
func (r *TemplateRegistry) notify(eventType EventType, info *TemplateInfo) {
	event := TemplateEvent{
		Type:      eventType,
		Template:  info,
		Timestamp: time.Now(),
	}

	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Watch returns a channel that receives template events
func (r *TemplateRegistry) Watch() <-chan TemplateEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan TemplateEvent, watcherBuffer)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *TemplateRegistry) UnWatch(ch <-chan TemplateEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered templates
func (r *TemplateRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.templates)
}
