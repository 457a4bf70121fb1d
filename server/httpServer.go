package server

import (
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
	"github.com/livepeer/joy4/format/flv"

	"github.com/lumastream/luma/auth"
	"github.com/lumastream/luma/hls"
	"github.com/lumastream/luma/media"
	"github.com/lumastream/luma/stream"
)

//This is for flushing to http request handlers (joy4 concept)
type writeFlusher struct {
	httpflusher http.Flusher
	io.Writer
}

func (self writeFlusher) Flush() error {
	self.httpflusher.Flush()
	return nil
}

// NewFLVHandler serves GET /{app}/{key}.flv as an endless FLV stream fed
// from the hub.  The response stays open until the viewer or the
// publisher leaves.
func NewFLVHandler(registry *stream.Registry, authorizer auth.Authorizer, idle time.Duration) http.Handler {
	if idle <= 0 {
		idle = defaultPlayIdleTimeout
	}
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		urlPath := strings.TrimPrefix(path.Clean(req.URL.Path), "/")
		if !strings.HasSuffix(urlPath, ".flv") {
			http.NotFound(w, req)
			return
		}
		name := strings.TrimSuffix(urlPath, ".flv")

		if err := authorizer.AuthorizeSubscribe(req.Context(), name); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		hub, err := registry.LookupForSubscriber(name)
		if err != nil {
			http.NotFound(w, req)
			return
		}
		ch, err := hub.Subscribe(stream.SubscribeOptions{Tag: "httpflv:" + req.RemoteAddr})
		if err != nil {
			http.NotFound(w, req)
			return
		}
		defer hub.Unsubscribe(ch)

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "video/x-flv")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Transfer-Encoding", "chunked")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		muxer := flv.NewMuxerWriteFlusher(writeFlusher{httpflusher: flusher, Writer: w})
		glog.Infof("Viewer %v attached to stream %v over HTTP-FLV", req.RemoteAddr, name)
		if err := media.CopyFromChannel(req.Context(), ch, muxer, idle); err != nil {
			glog.V(2).Infof("HTTP-FLV session %v ended: %v", req.RemoteAddr, err)
		}
	})
	return r
}

// NewHLSHandler serves playlists and segments straight off the
// segmenter's data path.  A missing segment gets 410 when a live stream's
// window already slid past it, 404 otherwise; files still on disk are
// served.
func NewHLSHandler(svc *hls.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		rel := strings.TrimPrefix(path.Clean(req.URL.Path), "/")
		if rel == "" || strings.HasPrefix(rel, "..") {
			http.NotFound(w, req)
			return
		}
		full := filepath.Join(svc.DataPath(), filepath.FromSlash(rel))

		switch {
		case strings.HasSuffix(rel, ".m3u8"):
			if _, err := os.Stat(full); err != nil {
				http.NotFound(w, req)
				return
			}
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			http.ServeFile(w, req, full)
		case strings.HasSuffix(rel, ".ts"):
			if _, err := os.Stat(full); err != nil {
				if name, seq, ok := splitSegmentName(rel); ok && svc.Pruned(name, seq) {
					http.Error(w, "segment pruned", http.StatusGone)
					return
				}
				http.NotFound(w, req)
				return
			}
			w.Header().Set("Content-Type", "video/mp2t")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			http.ServeFile(w, req, full)
		default:
			http.NotFound(w, req)
		}
	})
	return r
}

// splitSegmentName undoes the segmenter's {name}_{seq}.ts naming.
func splitSegmentName(rel string) (name string, seq uint64, ok bool) {
	base := strings.TrimSuffix(rel, ".ts")
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(base[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return base[:i], seq, true
}
