package hls

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumastream/luma/stream"
)

// stubMuxer writes one byte per packet so tests can run without real
// codec data.
type stubMuxer struct{}

func (stubMuxer) WriteSegment(w io.Writer, _, _ *stream.Packet, pkts []*stream.Packet) error {
	for range pkts {
		if _, err := w.Write([]byte{0x47}); err != nil {
			return err
		}
	}
	return nil
}

func videoSeqHdr() *stream.Packet {
	return &stream.Packet{Kind: stream.Video, IsSequenceHeader: true, Data: []byte{0x01}}
}

func keyframe(ts uint32) *stream.Packet {
	return &stream.Packet{Kind: stream.Video, IsKeyFrame: true, TimestampMS: ts}
}

func frame(ts uint32) *stream.Packet {
	return &stream.Packet{Kind: stream.Video, TimestampMS: ts}
}

func newLiveHub(t *testing.T) (*stream.Hub, uuid.UUID) {
	t.Helper()
	h := stream.NewHub("live/foo", stream.Config{})
	token := uuid.New()
	require.NoError(t, h.AcquirePublisher(token))
	return h, token
}

func startSegmenter(t *testing.T, hub *stream.Hub, cfg Config) (*Segmenter, chan error) {
	t.Helper()
	s := NewSegmenter(hub, cfg, nil)
	s.mux = stubMuxer{}
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	return s, done
}

// Segmentation on publisher keyframes: with a 1s target, keyframes at
// 0, 1050 and 2100 cut two full segments, and the shutdown flush adds
// the in-progress one.
func TestSegmenterCutsOnKeyframes(t *testing.T) {
	dir := t.TempDir()
	hub, token := newLiveHub(t)
	_, done := startSegmenter(t, hub, Config{
		DataPath:       dir,
		TargetDuration: time.Second,
		MaxSegments:    10,
	})

	// Give the segmenter a moment to subscribe.
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish(videoSeqHdr())
	hub.Publish(keyframe(0))
	for _, ts := range []uint32{200, 400, 600, 800} {
		hub.Publish(frame(ts))
	}
	hub.Publish(keyframe(1050))
	hub.Publish(frame(1250))
	hub.Publish(keyframe(2100))

	hub.ReleasePublisher(token)
	require.NoError(t, <-done)

	// Segment 0 covers [0,1050): five packets, ceil(1.05s) = 2s.
	data, err := os.ReadFile(filepath.Join(dir, "live/foo_0.ts"))
	require.NoError(t, err)
	assert.Len(t, data, 5)

	// Segment 1 covers [1050,2100): two packets.
	data, err = os.ReadFile(filepath.Join(dir, "live/foo_1.ts"))
	require.NoError(t, err)
	assert.Len(t, data, 2)

	pl, err := os.ReadFile(filepath.Join(dir, "live/foo.m3u8"))
	require.NoError(t, err)
	assert.Contains(t, string(pl), "#EXT-X-MEDIA-SEQUENCE:0")
	assert.Contains(t, string(pl), "#EXT-X-TARGETDURATION:2")
	assert.Contains(t, string(pl), "foo_0.ts")
	assert.Contains(t, string(pl), "foo_1.ts")
	assert.Contains(t, string(pl), "#EXT-X-ENDLIST")
}

func TestSegmenterLivePlaylistHasNoEndlist(t *testing.T) {
	dir := t.TempDir()
	hub, token := newLiveHub(t)
	defer hub.ReleasePublisher(token)
	_, done := startSegmenter(t, hub, Config{
		DataPath:       dir,
		TargetDuration: time.Second,
		MaxSegments:    10,
	})

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish(keyframe(0))
	hub.Publish(frame(500))
	hub.Publish(keyframe(1000))

	playlist := filepath.Join(dir, "live/foo.m3u8")
	require.Eventually(t, func() bool {
		_, err := os.Stat(playlist)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	pl, err := os.ReadFile(playlist)
	require.NoError(t, err)
	assert.NotContains(t, string(pl), "#EXT-X-ENDLIST")

	hub.ReleasePublisher(token)
	require.NoError(t, <-done)
}

// Segments must start at keyframes; a keyframe arriving before the
// target duration elapsed must not cut a micro-segment.
func TestSegmenterNoMicroSegments(t *testing.T) {
	dir := t.TempDir()
	hub, token := newLiveHub(t)
	_, done := startSegmenter(t, hub, Config{
		DataPath:       dir,
		TargetDuration: time.Second,
		MaxSegments:    10,
	})

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish(keyframe(0))
	hub.Publish(keyframe(200)) // too early to cut
	hub.Publish(keyframe(400)) // too early to cut
	hub.Publish(keyframe(1200))

	hub.ReleasePublisher(token)
	require.NoError(t, <-done)

	// One cut at 1200 plus the shutdown flush.
	data, err := os.ReadFile(filepath.Join(dir, "live/foo_0.ts"))
	require.NoError(t, err)
	assert.Len(t, data, 3)
	_, err = os.Stat(filepath.Join(dir, "live/foo_1.ts"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "live/foo_2.ts"))
	assert.True(t, os.IsNotExist(err))
}

// Audio ahead of the first keyframe is unplayable and must not end up
// leading a segment.
func TestSegmenterSkipsPreKeyframePackets(t *testing.T) {
	dir := t.TempDir()
	hub, token := newLiveHub(t)
	_, done := startSegmenter(t, hub, Config{
		DataPath:       dir,
		TargetDuration: time.Second,
		MaxSegments:    10,
	})

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish(&stream.Packet{Kind: stream.Audio, TimestampMS: 0})
	hub.Publish(&stream.Packet{Kind: stream.Audio, TimestampMS: 10})
	hub.Publish(keyframe(20))
	hub.Publish(frame(520))

	hub.ReleasePublisher(token)
	require.NoError(t, <-done)

	data, err := os.ReadFile(filepath.Join(dir, "live/foo_0.ts"))
	require.NoError(t, err)
	assert.Len(t, data, 2)
}

func TestSegmenterPrunedQueries(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{
		DataPath:       dir,
		TargetDuration: time.Second,
		MaxSegments:    2,
	}, nil)

	hub, token := newLiveHub(t)
	// Drive the service path end to end: segmenter registration,
	// window slide, pruned lookups.
	svc.Start(context.Background(), hub)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	seg := func() *Segmenter {
		svc.mu.RLock()
		defer svc.mu.RUnlock()
		return svc.active["live/foo"]
	}()
	require.NotNil(t, seg)
	seg.mux = stubMuxer{}

	ts := uint32(0)
	for i := 0; i < 4; i++ {
		hub.Publish(keyframe(ts))
		hub.Publish(frame(ts + 500))
		ts += 1000
	}

	// Segments 0..2 cut; window of 2 advertises 1,2.
	require.Eventually(t, func() bool { return seg.MinSequence() == 1 },
		time.Second, 5*time.Millisecond)
	assert.True(t, svc.Pruned("live/foo", 0))
	assert.False(t, svc.Pruned("live/foo", 1))
	assert.False(t, svc.Pruned("live/foo", 7))
	assert.False(t, svc.Pruned("live/other", 0))

	hub.ReleasePublisher(token)
	require.Eventually(t, func() bool { return seg == nil || !svc.Pruned("live/foo", 0) },
		time.Second, 5*time.Millisecond)
}
