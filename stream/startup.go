package stream

// StartupContext caches the packets a brand-new subscriber must see before
// any live frame: the stream metadata, the codec sequence headers and,
// when GOP caching is on, every video frame since the last keyframe.  It
// is owned by a Hub and only touched under the hub's lock.
type StartupContext struct {
	metadata *Packet
	videoSeq *Packet
	audioSeq *Packet

	gopEnabled bool
	gopCap     int
	gop        []*Packet
}

func NewStartupContext(fullGop bool, gopCap int) *StartupContext {
	return &StartupContext{gopEnabled: fullGop, gopCap: gopCap}
}

// Observe updates the cache with one published packet.  Sequence headers
// replace their dedicated slot and are kept out of the GOP cache.
func (c *StartupContext) Observe(pkt *Packet) {
	switch pkt.Kind {
	case Metadata:
		c.metadata = pkt
	case Audio:
		if pkt.IsSequenceHeader {
			c.audioSeq = pkt
		}
	case Video:
		if pkt.IsSequenceHeader {
			c.videoSeq = pkt
			return
		}
		if !c.gopEnabled {
			return
		}
		if pkt.IsKeyFrame {
			c.gop = c.gop[:0]
			c.gop = append(c.gop, pkt)
			return
		}
		if len(c.gop) == 0 {
			// Mid-GOP with nothing cached; wait for the next keyframe.
			return
		}
		if len(c.gop) >= c.gopCap {
			// Overlong GOP.  A truncated cache would start mid-picture,
			// so drop it and restart at the next keyframe.
			c.gop = nil
			return
		}
		c.gop = append(c.gop, pkt)
	}
}

// Prelude returns the packet sequence a new subscriber needs before its
// first live frame, in delivery order: metadata, video sequence header,
// audio sequence header, then the cached GOP.
func (c *StartupContext) Prelude() []*Packet {
	out := make([]*Packet, 0, 3+len(c.gop))
	if c.metadata != nil {
		out = append(out, c.metadata)
	}
	if c.videoSeq != nil {
		out = append(out, c.videoSeq)
	}
	if c.audioSeq != nil {
		out = append(out, c.audioSeq)
	}
	out = append(out, c.gop...)
	return out
}

// GopLen reports how many frames the GOP cache currently holds.
func (c *StartupContext) GopLen() int {
	return len(c.gop)
}

func (c *StartupContext) reset() {
	c.metadata = nil
	c.videoSeq = nil
	c.audioSeq = nil
	c.gop = nil
}
