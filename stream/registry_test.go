package stream

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRegistryPublisherLifecycle(t *testing.T) {
	r := NewRegistry(Config{})
	token := uuid.New()

	h, err := r.GetOrCreateForPublisher("live/foo", token)
	if err != nil {
		t.Fatalf("GetOrCreateForPublisher returned %v", err)
	}
	if !h.Live() {
		t.Fatalf("New hub has no publisher")
	}

	got, err := r.LookupForSubscriber("live/foo")
	if err != nil || got != h {
		t.Errorf("LookupForSubscriber returned (%v, %v), expected the created hub", got, err)
	}

	h.ReleasePublisher(token)
	r.NotifyPublisherLeft("live/foo", h)
	if _, err := r.LookupForSubscriber("live/foo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after teardown returned %v, expected ErrNotFound", err)
	}
}

func TestRegistryNameInUse(t *testing.T) {
	r := NewRegistry(Config{})
	if _, err := r.GetOrCreateForPublisher("live/foo", uuid.New()); err != nil {
		t.Fatalf("First publisher rejected: %v", err)
	}
	if _, err := r.GetOrCreateForPublisher("live/foo", uuid.New()); !errors.Is(err, ErrNameInUse) {
		t.Fatalf("Second publisher got %v, expected ErrNameInUse", err)
	}
	if _, err := r.GetOrCreateForPublisher("live/bar", uuid.New()); err != nil {
		t.Errorf("Publisher on a different name rejected: %v", err)
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry(Config{})
	if _, err := r.LookupForSubscriber("live/nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup returned %v, expected ErrNotFound", err)
	}
}

// A new publisher racing the old one's teardown gets a fresh hub, and
// the old hub's subscribers must not attach to it.
func TestRegistryReplacesTornDownHub(t *testing.T) {
	r := NewRegistry(Config{})
	oldToken := uuid.New()
	oldHub, _ := r.GetOrCreateForPublisher("live/foo", oldToken)
	oldCh, _ := oldHub.Subscribe(SubscribeOptions{Tag: "old-viewer"})

	oldHub.ReleasePublisher(oldToken)
	// Teardown notification hasn't run yet; the new publisher arrives.
	newHub, err := r.GetOrCreateForPublisher("live/foo", uuid.New())
	if err != nil {
		t.Fatalf("New publisher rejected during pending teardown: %v", err)
	}
	if newHub == oldHub {
		t.Fatalf("Registry reused the torn-down hub")
	}
	if oldCh.State() != Closed {
		t.Errorf("Old subscriber survived the publisher change")
	}

	// The late teardown notification must not unregister the new hub.
	r.NotifyPublisherLeft("live/foo", oldHub)
	got, err := r.LookupForSubscriber("live/foo")
	if err != nil || got != newHub {
		t.Errorf("Lookup after stale teardown returned (%v, %v), expected the new hub", got, err)
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry(Config{})
	h, _ := r.GetOrCreateForPublisher("live/foo", uuid.New())
	h.Subscribe(SubscribeOptions{Tag: "viewer"})

	infos := r.Snapshot()
	if len(infos) != 1 {
		t.Fatalf("Snapshot returned %v streams, expected 1", len(infos))
	}
	info := infos[0]
	if info.Name != "live/foo" || !info.Live || info.Subscribers != 1 {
		t.Errorf("Snapshot returned %+v", info)
	}
	if r.SubscriberTotal() != 1 {
		t.Errorf("SubscriberTotal is %v, expected 1", r.SubscriberTotal())
	}
}
