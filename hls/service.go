package hls

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/lumastream/luma/stream"
)

// Service runs one segmenter per HLS-enabled live stream and answers the
// HTTP side's pruned-segment queries.
type Service struct {
	cfg Config
	obs Observer

	mu     sync.RWMutex
	active map[string]*Segmenter
}

func NewService(cfg Config, obs Observer) *Service {
	return &Service{cfg: cfg, obs: obs, active: make(map[string]*Segmenter)}
}

// Start spawns the segmenter task for a freshly published hub.  The task
// ends on its own when the publisher leaves.
func (s *Service) Start(ctx context.Context, hub *stream.Hub) {
	seg := NewSegmenter(hub, s.cfg, s.obs)
	s.mu.Lock()
	s.active[hub.Name()] = seg
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.active[hub.Name()] == seg {
				delete(s.active, hub.Name())
			}
			s.mu.Unlock()
		}()
		if err := seg.Run(ctx); err != nil && err != context.Canceled {
			glog.Errorf("HLS segmenter for %v stopped: %v", hub.Name(), err)
		}
	}()
}

// Pruned reports whether the named stream is live and has already slid
// its window past the given sequence number.
func (s *Service) Pruned(name string, seq uint64) bool {
	s.mu.RLock()
	seg := s.active[name]
	s.mu.RUnlock()
	return seg != nil && seq < seg.MinSequence()
}

// DataPath is where segments and playlists live, for the HTTP handlers.
func (s *Service) DataPath() string {
	return s.cfg.DataPath
}
