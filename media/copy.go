package media

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"
	"github.com/livepeer/joy4/av"

	"github.com/lumastream/luma/stream"
)

// CopyFromChannel drains a subscriber channel into a muxer until the
// channel closes (clean end, trailer written, nil returned), the per-
// dequeue idle timeout fires, or the muxer errors.
//
// The first dequeues are the prelude; its sequence headers become the
// muxer header, which must be written before any media packet.
func CopyFromChannel(ctx context.Context, ch *stream.SubscriberChannel, mux av.Muxer, idle time.Duration) error {
	var videoSeq, audioSeq *stream.Packet
	var first *stream.Packet

	for first == nil {
		pkt, err := dequeue(ctx, ch, idle)
		if err != nil {
			return err
		}
		switch {
		case pkt.IsSequenceHeader && pkt.Kind == stream.Video:
			videoSeq = pkt
		case pkt.IsSequenceHeader && pkt.Kind == stream.Audio:
			audioSeq = pkt
		case pkt.Kind == stream.Metadata:
			// joy4 muxers emit their own metadata.
		default:
			first = pkt
		}
	}

	streams, vidIdx, audIdx, err := CodecData(videoSeq, audioSeq)
	if err != nil {
		return err
	}
	if err := mux.WriteHeader(streams); err != nil {
		return err
	}

	pkt := first
	for {
		if out, ok := ToAV(pkt, vidIdx, audIdx); ok {
			if err := mux.WritePacket(out); err != nil {
				return err
			}
		}
		pkt, err = dequeue(ctx, ch, idle)
		if errors.Is(err, stream.ErrChannelClosed) {
			if err := mux.WriteTrailer(); err != nil {
				glog.V(2).Infof("Error writing trailer for subscriber %v: %v", ch.Tag(), err)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func dequeue(ctx context.Context, ch *stream.SubscriberChannel, idle time.Duration) (*stream.Packet, error) {
	tctx, cancel := context.WithTimeout(ctx, idle)
	defer cancel()
	return ch.Dequeue(tctx)
}
