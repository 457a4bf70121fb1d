package stream

import (
	"github.com/livepeer/joy4/av"
)

// Kind tells the hub what a packet carries.
type Kind uint8

const (
	Video Kind = iota
	Audio
	Metadata
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Metadata:
		return "metadata"
	}
	return "unknown"
}

// Packet is one media frame flowing through a hub.  A packet is built once
// by the ingest side and after that shared by reference with every
// subscriber - nobody may mutate it, Data included.
//
// Sequence headers (AVCDecoderConfigurationRecord, AudioSpecificConfig)
// travel as packets with IsSequenceHeader set so that the prelude replay
// can hand them to late joiners before any media frame.
type Packet struct {
	Kind             Kind
	Codec            av.CodecType
	TimestampMS      uint32
	CompositionMS    int32
	IsSequenceHeader bool
	IsKeyFrame       bool
	Data             []byte
}
