// Package media bridges the hub's packet model and the joy4 av layer the
// wire protocols speak.
package media

import (
	"errors"
	"time"

	"github.com/golang/glog"
	"github.com/livepeer/joy4/av"
	"github.com/livepeer/joy4/codec/aacparser"
	"github.com/livepeer/joy4/codec/h264parser"

	"github.com/lumastream/luma/stream"
)

var ErrNoCodecData = errors.New("no usable codec data")

// SequenceHeaders converts the codec data a demuxer announced into
// sequence-header packets for the hub.  Codecs the egress muxers cannot
// reproduce are skipped with a warning.
func SequenceHeaders(streams []av.CodecData) ([]*stream.Packet, error) {
	out := make([]*stream.Packet, 0, len(streams))
	for _, cd := range streams {
		switch cd := cd.(type) {
		case h264parser.CodecData:
			out = append(out, &stream.Packet{
				Kind:             stream.Video,
				Codec:            av.H264,
				IsSequenceHeader: true,
				Data:             cd.AVCDecoderConfRecordBytes(),
			})
		case aacparser.CodecData:
			out = append(out, &stream.Packet{
				Kind:             stream.Audio,
				Codec:            av.AAC,
				IsSequenceHeader: true,
				Data:             cd.MPEG4AudioConfigBytes(),
			})
		default:
			glog.Warningf("Skipping unsupported codec %v", cd.Type())
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCodecData
	}
	return out, nil
}

// CodecData rebuilds joy4 codec data from cached sequence-header packets
// and reports which muxer stream index each packet kind maps to (-1 when
// absent).  Video always precedes audio.
func CodecData(videoSeq, audioSeq *stream.Packet) (streams []av.CodecData, vidIdx, audIdx int8, err error) {
	vidIdx, audIdx = -1, -1
	if videoSeq != nil {
		cd, err := h264parser.NewCodecDataFromAVCDecoderConfRecord(videoSeq.Data)
		if err != nil {
			return nil, -1, -1, err
		}
		vidIdx = int8(len(streams))
		streams = append(streams, cd)
	}
	if audioSeq != nil {
		cd, err := aacparser.NewCodecDataFromMPEG4AudioConfigBytes(audioSeq.Data)
		if err != nil {
			return nil, -1, -1, err
		}
		audIdx = int8(len(streams))
		streams = append(streams, cd)
	}
	if len(streams) == 0 {
		return nil, -1, -1, ErrNoCodecData
	}
	return streams, vidIdx, audIdx, nil
}

// FromAV converts one demuxed packet for the hub.  The second return is
// false when the packet belongs to a stream index we did not announce.
func FromAV(pkt av.Packet, streams []av.CodecData) (*stream.Packet, bool) {
	if int(pkt.Idx) >= len(streams) || pkt.Idx < 0 {
		return nil, false
	}
	cd := streams[pkt.Idx]
	kind := stream.Audio
	if cd.Type().IsVideo() {
		kind = stream.Video
	}
	return &stream.Packet{
		Kind:          kind,
		Codec:         cd.Type(),
		TimestampMS:   uint32(pkt.Time / time.Millisecond),
		CompositionMS: int32(pkt.CompositionTime / time.Millisecond),
		IsKeyFrame:    kind == stream.Video && pkt.IsKeyFrame,
		Data:          pkt.Data,
	}, true
}

// ToAV converts a hub packet for a muxer built from CodecData's indexes.
// Sequence headers, metadata and kinds without a stream are skipped.
func ToAV(p *stream.Packet, vidIdx, audIdx int8) (av.Packet, bool) {
	if p.IsSequenceHeader || p.Kind == stream.Metadata {
		return av.Packet{}, false
	}
	idx := audIdx
	if p.Kind == stream.Video {
		idx = vidIdx
	}
	if idx < 0 {
		return av.Packet{}, false
	}
	return av.Packet{
		Idx:             idx,
		IsKeyFrame:      p.IsKeyFrame,
		Time:            time.Duration(p.TimestampMS) * time.Millisecond,
		CompositionTime: time.Duration(p.CompositionMS) * time.Millisecond,
		Data:            p.Data,
	}, true
}
