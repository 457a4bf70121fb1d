package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Stats are process-wide counters shared by every hub of a registry.
type Stats struct {
	PacketsPublished atomic.Uint64
	PacketsDropped   atomic.Uint64
}

// StreamInfo is the registry's public view of one hub.
type StreamInfo struct {
	Name        string    `json:"name"`
	Live        bool      `json:"live"`
	Subscribers int       `json:"subscribers"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registry maps stream names to hubs.  Lookups take the read side of the
// lock and never suspend while holding it; creation and teardown briefly
// exclude readers.
type Registry struct {
	cfg   Config
	stats Stats

	mu   sync.RWMutex
	hubs map[string]*Hub
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:  cfg.withDefaults(),
		hubs: make(map[string]*Hub),
	}
}

// GetOrCreateForPublisher hands the named hub to a new publishing
// session.  A live publisher on the same name yields ErrNameInUse.  A hub
// whose publisher just left is replaced with a fresh one - its old
// subscribers are already closed and must not see the new session.
func (r *Registry) GetOrCreateForPublisher(name string, token uuid.UUID) (*Hub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h := r.hubs[name]; h != nil {
		if h.Live() {
			return nil, ErrNameInUse
		}
		glog.Infof("Replacing torn-down hub for stream %v", name)
	}
	h := newHub(name, r.cfg, &r.stats)
	if err := h.AcquirePublisher(token); err != nil {
		return nil, err
	}
	r.hubs[name] = h
	glog.Infof("Created hub for stream %v", name)
	return h, nil
}

// LookupForSubscriber finds a hub for a viewer.
func (r *Registry) LookupForSubscriber(name string) (*Hub, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := r.hubs[name]
	if h == nil {
		return nil, ErrNotFound
	}
	return h, nil
}

// NotifyPublisherLeft removes the hub from the registry once its
// publishing session ends.  The hub pointer guards against unregistering
// a newer hub that a racing publisher already put in place.
func (r *Registry) NotifyPublisherLeft(name string, h *Hub) {
	r.mu.Lock()
	if r.hubs[name] == h {
		delete(r.hubs, name)
	}
	r.mu.Unlock()
	glog.Infof("Stream %v removed from registry", name)
}

// Names lists the currently registered stream names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hubs))
	for name := range r.hubs {
		names = append(names, name)
	}
	return names
}

// Snapshot describes every registered hub, for the monitor API.
func (r *Registry) Snapshot() []StreamInfo {
	r.mu.RLock()
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.mu.RUnlock()

	infos := make([]StreamInfo, 0, len(hubs))
	for _, h := range hubs {
		infos = append(infos, StreamInfo{
			Name:        h.Name(),
			Live:        h.Live(),
			Subscribers: h.SubscriberCount(),
			CreatedAt:   h.CreatedAt(),
		})
	}
	return infos
}

// SubscriberTotal sums subscribers across all hubs.
func (r *Registry) SubscriberTotal() int {
	r.mu.RLock()
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.mu.RUnlock()

	total := 0
	for _, h := range hubs {
		total += h.SubscriberCount()
	}
	return total
}

// Stats exposes the shared counters for the monitor.
func (r *Registry) Stats() *Stats {
	return &r.stats
}
