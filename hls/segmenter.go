package hls

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/lumastream/luma/stream"
)

// Config carries the HLS knobs from the configuration layer.
type Config struct {
	DataPath       string
	TargetDuration time.Duration
	MaxSegments    int
	MinAge         time.Duration
	CleanupDelay   time.Duration
	MaxTotalBytes  int64
}

// Observer gets a callback per written / pruned segment.  May be nil.
type Observer interface {
	SegmentWritten()
	SegmentPruned()
}

// maxConsecutiveFailures is how many segment writes in a row may fail
// before the segmenter gives up on the stream.
const maxConsecutiveFailures = 3

// Segmenter turns one hub's packet flow into a rolling window of MPEG-TS
// files plus a playlist.  Segments are cut on publisher keyframes once
// the target duration has accumulated; HLS needs every segment to begin
// at a decoding-restart point, so the segmenter never cuts mid-GOP even
// when the publisher's keyframe cadence is slower than the target.
type Segmenter struct {
	name string
	hub  *stream.Hub
	cfg  Config
	mux  SegmentMuxer
	obs  Observer
	now  func() time.Time

	window *Window
	minSeq atomic.Uint64

	videoSeq  *stream.Packet
	audioSeq  *stream.Packet
	cur       []*stream.Packet
	segStart  uint32
	haveStart bool
	warnedGop bool
	failures  int
}

func NewSegmenter(hub *stream.Hub, cfg Config, obs Observer) *Segmenter {
	return &Segmenter{
		name:   hub.Name(),
		hub:    hub,
		cfg:    cfg,
		mux:    TSMuxer{},
		obs:    obs,
		now:    time.Now,
		window: newWindow(cfg.MaxSegments, cfg.MinAge, cfg.CleanupDelay, cfg.MaxTotalBytes),
	}
}

// Run subscribes to the hub and segments until the publisher leaves or
// ctx is canceled.  It uses DisconnectSlow: a segmenter that cannot keep
// up must stop rather than write gappy segments.
func (s *Segmenter) Run(ctx context.Context) error {
	if err := s.prepare(); err != nil {
		return fmt.Errorf("preparing segment directory for %v: %w", s.name, err)
	}
	ch, err := s.hub.Subscribe(stream.SubscribeOptions{
		Tag:    "hls:" + s.name,
		Policy: stream.DisconnectSlow,
	})
	if err != nil {
		return err
	}
	defer s.hub.Unsubscribe(ch)

	for {
		tctx, cancel := context.WithTimeout(ctx, time.Second)
		pkt, err := ch.Dequeue(tctx)
		cancel()
		switch {
		case err == nil:
			if err := s.handlePacket(pkt); err != nil {
				s.finalize()
				return err
			}
		case errors.Is(err, stream.ErrChannelClosed):
			s.finalize()
			return nil
		case errors.Is(err, stream.ErrLagged):
			s.finalize()
			return fmt.Errorf("segmenter for %v fell behind the publisher: %w", s.name, err)
		case ctx.Err() != nil:
			s.finalize()
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			// No packets right now; a fine moment to reap old files.
			s.deleteDue(s.window.DuePending(s.now()))
		default:
			s.finalize()
			return err
		}
	}
}

// prepare creates the stream's directory and clears leftovers from a
// previous run, whose sequence numbers would collide with this session.
func (s *Segmenter) prepare() error {
	playlist := s.playlistPath()
	if err := os.MkdirAll(filepath.Dir(playlist), 0755); err != nil {
		return err
	}
	stale, _ := filepath.Glob(filepath.Join(s.cfg.DataPath, s.name+"_*.ts"))
	stale = append(stale, playlist)
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			glog.Warningf("Could not remove stale HLS file %v: %v", path, err)
		}
	}
	return nil
}

func (s *Segmenter) handlePacket(pkt *stream.Packet) error {
	if pkt.IsSequenceHeader {
		switch pkt.Kind {
		case stream.Video:
			s.videoSeq = pkt
		case stream.Audio:
			s.audioSeq = pkt
		}
		return nil
	}
	if pkt.Kind == stream.Metadata {
		return nil
	}

	if pkt.Kind == stream.Video && pkt.IsKeyFrame && len(s.cur) > 0 {
		elapsed := time.Duration(pkt.TimestampMS-s.segStart) * time.Millisecond
		if elapsed >= s.cfg.TargetDuration {
			if err := s.cut(pkt.TimestampMS); err != nil {
				return err
			}
		}
	}

	// Segments must begin at a keyframe; packets ahead of the first one
	// cannot be played and are not buffered.
	if len(s.cur) == 0 && !(pkt.Kind == stream.Video && pkt.IsKeyFrame) {
		return nil
	}

	if !s.haveStart {
		s.segStart = pkt.TimestampMS
		s.haveStart = true
	}
	s.cur = append(s.cur, pkt)

	if pkt.Kind == stream.Video && !pkt.IsKeyFrame {
		elapsed := time.Duration(pkt.TimestampMS-s.segStart) * time.Millisecond
		if elapsed >= 2*s.cfg.TargetDuration && !s.warnedGop {
			glog.Warningf("Stream %v: no keyframe for %v, cannot cut segment mid-GOP", s.name, elapsed)
			s.warnedGop = true
		}
	}
	return nil
}

// cut closes the current segment at the given boundary timestamp (the
// incoming keyframe that starts the next segment, or the last packet's
// timestamp on flush).
func (s *Segmenter) cut(boundaryMS uint32) error {
	durMS := boundaryMS - s.segStart
	duration := math.Ceil(float64(durMS) / 1000)
	seq := s.window.NextSequence()
	path := filepath.Join(s.cfg.DataPath, fmt.Sprintf("%s_%d.ts", s.name, seq))

	size, err := s.writeSegmentFile(path)
	if err != nil {
		s.failures++
		glog.Errorf("Stream %v: writing segment %v failed (%v consecutive): %v", s.name, seq, s.failures, err)
		s.resetSegment()
		if s.failures >= maxConsecutiveFailures {
			return fmt.Errorf("segmenter for %v: %v consecutive segment failures: %w", s.name, s.failures, err)
		}
		return nil
	}
	s.failures = 0

	now := s.now()
	s.window.Append(Segment{
		Sequence:  seq,
		Path:      path,
		Duration:  duration,
		Bytes:     size,
		CreatedAt: now,
	}, now)
	if s.obs != nil {
		s.obs.SegmentWritten()
	}
	s.resetSegment()
	s.deleteDue(s.window.DuePending(now))
	return s.writePlaylist(false)
}

func (s *Segmenter) resetSegment() {
	s.cur = s.cur[:0]
	s.haveStart = false
	s.warnedGop = false
}

// writeSegmentFile serializes to a temp file and renames it into place so
// readers never observe a half-written segment.
func (s *Segmenter) writeSegmentFile(path string) (int64, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	if err := s.mux.WriteSegment(f, s.videoSeq, s.audioSeq, s.cur); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	info, err := os.Stat(tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return info.Size(), nil
}

func (s *Segmenter) writePlaylist(closed bool) error {
	segs := s.window.Segments()
	basenames := make([]string, len(segs))
	for i, seg := range segs {
		basenames[i] = filepath.Base(seg.Path)
	}
	data, err := s.window.Playlist(basenames, closed)
	if err != nil {
		return err
	}
	path := s.playlistPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	s.minSeq.Store(s.window.MediaSequence())
	return nil
}

func (s *Segmenter) playlistPath() string {
	return filepath.Join(s.cfg.DataPath, s.name+".m3u8")
}

// finalize flushes the in-progress segment, marks the playlist ended and
// deletes every file still scheduled for deletion.
func (s *Segmenter) finalize() {
	if len(s.cur) > 0 {
		last := s.cur[len(s.cur)-1].TimestampMS
		if err := s.cut(last); err != nil {
			glog.Errorf("Stream %v: flushing final segment: %v", s.name, err)
		}
	}
	if err := s.writePlaylist(true); err != nil {
		glog.Errorf("Stream %v: writing final playlist: %v", s.name, err)
	}
	s.deleteDue(s.window.AllPending())
}

func (s *Segmenter) deleteDue(due []Segment) {
	for _, seg := range due {
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			glog.Warningf("Stream %v: could not delete segment %v: %v", s.name, seg.Path, err)
			continue
		}
		if s.obs != nil {
			s.obs.SegmentPruned()
		}
		glog.V(2).Infof("Stream %v: deleted segment %v", s.name, filepath.Base(seg.Path))
	}
}

// MinSequence is the first sequence number the playlist still advertises.
// The HTTP side uses it to answer 410 for pruned segments.
func (s *Segmenter) MinSequence() uint64 {
	return s.minSeq.Load()
}
