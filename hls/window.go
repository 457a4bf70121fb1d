package hls

import (
	"time"

	"github.com/livepeer/m3u8"
)

// Segment is one finished TS file advertised by the playlist.
type Segment struct {
	Sequence  uint64
	Path      string
	Duration  float64
	Bytes     int64
	CreatedAt time.Time
}

type pendingDelete struct {
	seg       Segment
	removedAt time.Time
}

// Window is the rolling set of segments the playlist advertises, plus the
// bookkeeping for segments that left the playlist but whose files must
// linger until clients finish fetching them.  It is owned by one
// segmenter task and never shared.
type Window struct {
	maxSegments   int
	minAge        time.Duration
	cleanupDelay  time.Duration
	maxTotalBytes int64

	segments   []Segment
	pending    []pendingDelete
	nextSeq    uint64
	totalBytes int64
}

func newWindow(maxSegments int, minAge, cleanupDelay time.Duration, maxTotalBytes int64) *Window {
	return &Window{
		maxSegments:   maxSegments,
		minAge:        minAge,
		cleanupDelay:  cleanupDelay,
		maxTotalBytes: maxTotalBytes,
	}
}

// NextSequence hands out the sequence number for the segment being cut.
// Sequence numbers are never reused.
func (w *Window) NextSequence() uint64 {
	seq := w.nextSeq
	w.nextSeq++
	return seq
}

// Append admits a finished segment and evicts from the front while the
// window exceeds its segment-count or byte budget.  Evicted segments move
// to the pending-delete list; the playlist forgets them immediately.
func (w *Window) Append(seg Segment, now time.Time) {
	w.segments = append(w.segments, seg)
	w.totalBytes += seg.Bytes
	for len(w.segments) > 0 &&
		(len(w.segments) > w.maxSegments || (w.maxTotalBytes > 0 && w.totalBytes > w.maxTotalBytes)) {
		old := w.segments[0]
		w.segments = w.segments[1:]
		w.totalBytes -= old.Bytes
		w.pending = append(w.pending, pendingDelete{seg: old, removedAt: now})
	}
}

// MediaSequence is the EXT-X-MEDIA-SEQUENCE value: the sequence number of
// the first advertised segment.
func (w *Window) MediaSequence() uint64 {
	if len(w.segments) == 0 {
		return w.nextSeq
	}
	return w.segments[0].Sequence
}

func (w *Window) Len() int {
	return len(w.segments)
}

func (w *Window) Segments() []Segment {
	return w.segments
}

// DuePending removes and returns the evicted segments whose files may be
// deleted now: the cleanup delay has passed since eviction AND the file
// is old enough that no client is still mid-download.
func (w *Window) DuePending(now time.Time) []Segment {
	var due []Segment
	keep := w.pending[:0]
	for _, p := range w.pending {
		if now.Sub(p.removedAt) >= w.cleanupDelay && now.Sub(p.seg.CreatedAt) >= w.minAge {
			due = append(due, p.seg)
		} else {
			keep = append(keep, p)
		}
	}
	w.pending = keep
	return due
}

// AllPending drains the pending list unconditionally, for shutdown.
func (w *Window) AllPending() []Segment {
	due := make([]Segment, 0, len(w.pending))
	for _, p := range w.pending {
		due = append(due, p.seg)
	}
	w.pending = nil
	return due
}

// Playlist renders the current window.  A closed playlist carries
// EXT-X-ENDLIST so players know the stream ended.
func (w *Window) Playlist(basenames []string, closed bool) ([]byte, error) {
	size := uint(len(w.segments))
	if size == 0 {
		size = 1
	}
	pl, err := m3u8.NewMediaPlaylist(size, size)
	if err != nil {
		return nil, err
	}
	for i, seg := range w.segments {
		if err := pl.Append(basenames[i], seg.Duration, ""); err != nil {
			return nil, err
		}
	}
	pl.SeqNo = w.MediaSequence()
	if closed {
		pl.Close()
	}
	return pl.Encode().Bytes(), nil
}
