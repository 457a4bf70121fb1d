package stream

import "errors"

var ErrNameInUse = errors.New("stream name already has a publisher")
var ErrNotFound = errors.New("stream not found")
var ErrNotPublishing = errors.New("no publisher attached to hub")
var ErrChannelClosed = errors.New("subscriber channel closed")
var ErrLagged = errors.New("subscriber lagged behind publisher")
var ErrBadPacket = errors.New("malformed media packet")
