// Package record archives publish sessions as FLV files.
package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	"github.com/livepeer/joy4/format/flv"

	"github.com/lumastream/luma/media"
	"github.com/lumastream/luma/stream"
)

const recordIdleTimeout = 30 * time.Second

// Recorder writes one {dir}/{name}_{unix}.flv per publish session.  It
// subscribes with DisconnectSlow: an archive with holes is worse than no
// archive, so a recorder that cannot keep up stops.
type Recorder struct {
	dir string
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Start spawns the recording task for a freshly published hub.
func (r *Recorder) Start(ctx context.Context, hub *stream.Hub) {
	go func() {
		if err := r.record(ctx, hub); err != nil {
			glog.Errorf("Recording of %v stopped: %v", hub.Name(), err)
		}
	}()
}

func (r *Recorder) record(ctx context.Context, hub *stream.Hub) error {
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%d.flv", hub.Name(), time.Now().Unix()))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	ch, err := hub.Subscribe(stream.SubscribeOptions{
		Tag:    "record:" + hub.Name(),
		Policy: stream.DisconnectSlow,
	})
	if err != nil {
		return err
	}
	defer hub.Unsubscribe(ch)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	glog.Infof("Recording %v to %v", hub.Name(), path)

	err = media.CopyFromChannel(ctx, ch, flv.NewMuxer(f), recordIdleTimeout)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A partial file past the header may still play; only remove
		// recordings that never got going.
		if info, serr := os.Stat(path); serr == nil && info.Size() == 0 {
			os.Remove(path)
		}
		return err
	}
	glog.Infof("Finished recording %v", path)
	return nil
}
