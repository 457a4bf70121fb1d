package hls

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(seq uint64, dur float64, bytes int64, created time.Time) Segment {
	return Segment{Sequence: seq, Path: "data/live/foo_" + string(rune('0'+seq)) + ".ts", Duration: dur, Bytes: bytes, CreatedAt: created}
}

func TestWindowSequenceNumbersNeverReused(t *testing.T) {
	w := newWindow(3, 0, 0, 0)
	var last uint64
	for i := 0; i < 10; i++ {
		seq := w.NextSequence()
		if i > 0 {
			require.Greater(t, seq, last)
		}
		last = seq
	}
}

// Pruning scenario: five rapid segments with a three-segment window.
// The playlist advertises 2,3,4 and the evicted files wait out both the
// cleanup delay and the minimum age before deletion.
func TestWindowSlideAndDelayedDeletion(t *testing.T) {
	base := time.Now()
	w := newWindow(3, 30*time.Second, 5*time.Second, 0)

	for i := 0; i < 5; i++ {
		created := base.Add(time.Duration(i) * time.Second)
		w.Append(seg(w.NextSequence(), 1, 100, created), created)
	}

	require.Equal(t, 3, w.Len())
	assert.EqualValues(t, 2, w.MediaSequence())
	assert.EqualValues(t, 2, w.Segments()[0].Sequence)
	assert.EqualValues(t, 4, w.Segments()[2].Sequence)

	// Cleanup delay not yet elapsed: nothing due.
	assert.Empty(t, w.DuePending(base.Add(6*time.Second)))

	// Delay elapsed but the files are younger than min age: still kept.
	assert.Empty(t, w.DuePending(base.Add(20*time.Second)))

	// Both conditions met for segment 0 only (created at base).
	due := w.DuePending(base.Add(30 * time.Second))
	require.Len(t, due, 1)
	assert.EqualValues(t, 0, due[0].Sequence)

	due = w.DuePending(base.Add(40 * time.Second))
	require.Len(t, due, 1)
	assert.EqualValues(t, 1, due[0].Sequence)
}

func TestWindowByteBudget(t *testing.T) {
	now := time.Now()
	w := newWindow(10, 0, 0, 250)

	for i := 0; i < 3; i++ {
		w.Append(seg(w.NextSequence(), 1, 100, now), now)
	}
	// 300 bytes against a 250 budget: the oldest goes.
	require.Equal(t, 2, w.Len())
	assert.EqualValues(t, 1, w.MediaSequence())
}

func TestWindowPlaylist(t *testing.T) {
	now := time.Now()
	w := newWindow(5, 0, 0, 0)
	w.Append(Segment{Sequence: w.NextSequence(), Path: "data/live/foo_0.ts", Duration: 2, CreatedAt: now}, now)
	w.Append(Segment{Sequence: w.NextSequence(), Path: "data/live/foo_1.ts", Duration: 2, CreatedAt: now}, now)

	data, err := w.Playlist([]string{"foo_0.ts", "foo_1.ts"}, false)
	require.NoError(t, err)
	pl := string(data)

	assert.True(t, strings.HasPrefix(pl, "#EXTM3U"))
	assert.Contains(t, pl, "#EXT-X-VERSION:3")
	assert.Contains(t, pl, "#EXT-X-TARGETDURATION:2")
	assert.Contains(t, pl, "#EXT-X-MEDIA-SEQUENCE:0")
	assert.Contains(t, pl, "foo_0.ts")
	assert.Contains(t, pl, "foo_1.ts")
	assert.NotContains(t, pl, "#EXT-X-ENDLIST")

	data, err = w.Playlist([]string{"foo_0.ts", "foo_1.ts"}, true)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#EXT-X-ENDLIST")
}

func TestWindowPlaylistMediaSequenceAfterSlide(t *testing.T) {
	now := time.Now()
	w := newWindow(2, 0, 0, 0)
	for i := 0; i < 4; i++ {
		w.Append(Segment{Sequence: w.NextSequence(), Path: "foo.ts", Duration: 1, CreatedAt: now}, now)
	}
	data, err := w.Playlist([]string{"foo_2.ts", "foo_3.ts"}, false)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#EXT-X-MEDIA-SEQUENCE:2")
}
