package stream

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Config carries the per-hub knobs the registry hands to every hub it
// creates.
type Config struct {
	// ChannelCapacity bounds each subscriber queue.
	ChannelCapacity int
	// FullGop enables the GOP cache in the startup context.
	FullGop bool
	// GopCacheFrames caps the GOP cache length.
	GopCacheFrames int
}

const (
	DefaultChannelCapacity = 256
	DefaultGopCacheFrames  = 1024
)

func (c Config) withDefaults() Config {
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.GopCacheFrames <= 0 {
		c.GopCacheFrames = DefaultGopCacheFrames
	}
	return c
}

// SubscribeOptions shape one subscriber channel.
type SubscribeOptions struct {
	// Tag identifies the consumer in logs, e.g. "rtmp:1.2.3.4:51234".
	Tag string
	// Policy picks the overflow behavior.  The zero value is DropOldest.
	Policy OverflowPolicy
	// Capacity overrides the hub's channel capacity when positive.
	Capacity int
}

// Hub is the per-stream rendezvous between at most one publisher and any
// number of subscribers.  Packets fan out in publish order; a new
// subscriber atomically receives the current prelude so that its first
// dequeued frames are always decodable.
type Hub struct {
	name      string
	cfg       Config
	createdAt time.Time
	stats     *Stats

	mu        sync.RWMutex
	publisher uuid.UUID
	startup   *StartupContext
	subs      map[uint64]*SubscriberChannel
	nextSub   uint64
	closed    bool
}

// NewHub builds a hub that is not yet registered anywhere.  Most callers
// want Registry.GetOrCreateForPublisher instead.
func NewHub(name string, cfg Config) *Hub {
	return newHub(name, cfg, &Stats{})
}

func newHub(name string, cfg Config, stats *Stats) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		name:      name,
		cfg:       cfg,
		createdAt: time.Now(),
		stats:     stats,
		startup:   NewStartupContext(cfg.FullGop, cfg.GopCacheFrames),
		subs:      make(map[uint64]*SubscriberChannel),
	}
}

func (h *Hub) Name() string {
	return h.name
}

func (h *Hub) CreatedAt() time.Time {
	return h.createdAt
}

// Live reports whether a publisher currently holds the hub.
func (h *Hub) Live() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.publisher != uuid.Nil
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// AcquirePublisher claims the hub for one publishing session.  At most
// one token holds the hub at any time.
func (h *Hub) AcquirePublisher(token uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrNotFound
	}
	if h.publisher != uuid.Nil {
		return ErrNameInUse
	}
	h.publisher = token
	return nil
}

// ReleasePublisher ends the publishing session: every subscriber channel
// is closed, the startup context dropped and the hub marked dead so that
// a racing new publisher gets a fresh hub from the registry instead.
func (h *Hub) ReleasePublisher(token uuid.UUID) {
	h.mu.Lock()
	if h.publisher != token {
		h.mu.Unlock()
		glog.Warningf("Release with unknown publisher token on stream %v", h.name)
		return
	}
	h.publisher = uuid.Nil
	h.closed = true
	h.startup.reset()
	subs := make([]*SubscriberChannel, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.subs = make(map[uint64]*SubscriberChannel)
	h.mu.Unlock()

	for _, ch := range subs {
		ch.Close()
	}
	glog.Infof("Stream %v: publisher left, closed %v subscribers", h.name, len(subs))
}

// Publish fans one packet out to every subscriber.  The startup update
// and the subscriber snapshot share one short critical section so that a
// concurrent Subscribe sees either the pre-packet prelude (and then gets
// the packet through fan-out) or the post-packet prelude (and the packet
// is not owed to it) - never half of either.
// The enqueues themselves run outside the lock; they never block.
func (h *Hub) Publish(pkt *Packet) error {
	if pkt == nil {
		return ErrBadPacket
	}
	h.mu.Lock()
	if h.publisher == uuid.Nil || h.closed {
		h.mu.Unlock()
		glog.Errorf("Dropping packet published to stream %v with no publisher attached", h.name)
		return ErrNotPublishing
	}
	h.startup.Observe(pkt)
	snapshot := make([]*SubscriberChannel, 0, len(h.subs))
	for _, ch := range h.subs {
		snapshot = append(snapshot, ch)
	}
	h.mu.Unlock()

	var dead []*SubscriberChannel
	for _, ch := range snapshot {
		switch ch.TryEnqueue(pkt) {
		case Dropped:
			h.stats.PacketsDropped.Add(1)
			glog.V(2).Infof("Stream %v: subscriber %v lagging, dropped oldest packet", h.name, ch.Tag())
		case ChannelClosed:
			dead = append(dead, ch)
		}
	}
	if len(dead) > 0 {
		h.mu.Lock()
		for _, ch := range dead {
			delete(h.subs, ch.ID())
		}
		h.mu.Unlock()
		for _, ch := range dead {
			ch.Close()
			glog.Infof("Stream %v: removed closed subscriber %v", h.name, ch.Tag())
		}
	}
	h.stats.PacketsPublished.Add(1)
	return nil
}

// Subscribe creates a channel, primes it with the current prelude and
// registers it, all atomically with respect to Publish.
func (h *Hub) Subscribe(opts SubscribeOptions) (*SubscriberChannel, error) {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = h.cfg.ChannelCapacity
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrNotFound
	}
	h.nextSub++
	ch := newSubscriberChannel(h.nextSub, opts.Tag, capacity, opts.Policy)
	ch.prime(h.startup.Prelude())
	h.subs[ch.ID()] = ch
	return ch, nil
}

// Unsubscribe removes and closes the channel.  Idempotent.
func (h *Hub) Unsubscribe(ch *SubscriberChannel) {
	if ch == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, ch.ID())
	h.mu.Unlock()
	ch.Close()
}
