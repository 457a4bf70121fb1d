package hls

import (
	"io"

	"github.com/livepeer/joy4/format/ts"

	"github.com/lumastream/luma/media"
	"github.com/lumastream/luma/stream"
)

// SegmentMuxer serializes one segment's packets to a container.  The
// segmenter owns when to cut; the muxer owns the bytes.
type SegmentMuxer interface {
	WriteSegment(w io.Writer, videoSeq, audioSeq *stream.Packet, pkts []*stream.Packet) error
}

// TSMuxer writes MPEG-TS through joy4.
type TSMuxer struct{}

func (TSMuxer) WriteSegment(w io.Writer, videoSeq, audioSeq *stream.Packet, pkts []*stream.Packet) error {
	streams, vidIdx, audIdx, err := media.CodecData(videoSeq, audioSeq)
	if err != nil {
		return err
	}
	mux := ts.NewMuxer(w)
	if err := mux.WriteHeader(streams); err != nil {
		return err
	}
	for _, p := range pkts {
		out, ok := media.ToAV(p, vidIdx, audIdx)
		if !ok {
			continue
		}
		if err := mux.WritePacket(out); err != nil {
			return err
		}
	}
	return mux.WriteTrailer()
}
