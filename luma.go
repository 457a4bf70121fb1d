//Luma is a live-streaming origin server.  A publisher pushes a stream
//over RTMP and any number of viewers pull it back out over RTMP,
//HTTP-FLV or HLS, all fed from one in-memory hub per stream.
//
//Try it out with:
//
//ffmpeg -re -i bunny.mp4 -c copy -f flv rtmp://localhost/live/movie
//ffplay rtmp://localhost/live/movie
//ffplay http://localhost:3006/live/movie.flv
//ffplay http://localhost:3001/live/movie.m3u8
package luma

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/lumastream/luma/auth"
	"github.com/lumastream/luma/config"
	"github.com/lumastream/luma/event"
	"github.com/lumastream/luma/hls"
	"github.com/lumastream/luma/monitor"
	"github.com/lumastream/luma/record"
	"github.com/lumastream/luma/server"
	"github.com/lumastream/luma/stream"
)

const shutdownTimeout = 5 * time.Second

// Server bundles every enabled listener around one hub registry.
type Server struct {
	cfg      *config.Config
	registry *stream.Registry
	metrics  *monitor.Metrics
	rtmp     *server.RTMPServer
	httpSrvs []*http.Server
}

// New wires a server from configuration.  It fails fast on anything that
// would only blow up at first use, like a malformed Redis URL.
func New(cfg *config.Config) (*Server, error) {
	registry := stream.NewRegistry(stream.Config{
		ChannelCapacity: cfg.ChannelCapacity,
		FullGop:         cfg.FullGop,
		GopCacheFrames:  cfg.GopCacheFrames,
	})
	metrics := monitor.NewMetrics(registry)

	var authorizer auth.Authorizer = auth.Noop{}
	var events event.Sender = event.Nop{}
	if cfg.AuthEnable {
		ra, err := auth.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting auth redis: %w", err)
		}
		authorizer = ra
		events = event.NewRedisSender(ra.Client())
	}

	rtmp := server.NewRTMPServer(cfg.RTMP.Port, registry, authorizer, events)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		metrics:  metrics,
		rtmp:     rtmp,
	}

	if cfg.HLS.Enable {
		svc := hls.NewService(hls.Config{
			DataPath:       cfg.HLS.DataPath,
			TargetDuration: cfg.HLS.TsDuration,
			MaxSegments:    cfg.HLS.Cleanup.MaxFilesPerStream,
			MinAge:         time.Duration(cfg.HLS.Cleanup.MinFileAgeSeconds) * time.Second,
			CleanupDelay:   time.Duration(cfg.HLS.Cleanup.CleanupDelaySeconds) * time.Second,
			MaxTotalBytes:  int64(cfg.HLS.Cleanup.MaxTotalSizeMB) * 1024 * 1024,
		}, metrics)
		rtmp.EnableHLS(svc)
		s.httpSrvs = append(s.httpSrvs, &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HLS.Port),
			Handler: server.NewHLSHandler(svc),
		})
	}
	if cfg.HTTPFLV.Enable {
		s.httpSrvs = append(s.httpSrvs, &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTPFLV.Port),
			Handler: server.NewFLVHandler(registry, authorizer, 0),
		})
	}
	if cfg.Monitor.Enable {
		s.httpSrvs = append(s.httpSrvs, &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitor.Port),
			Handler: monitor.NewHandler(metrics, registry),
		})
	}
	if cfg.FLV.Enable {
		rtmp.EnableRecording(record.NewRecorder(cfg.FLV.DataPath))
	}

	return s, nil
}

// Registry exposes the hub registry, mostly for tests and embedders.
func (s *Server) Registry() *stream.Registry {
	return s.registry
}

// Start runs every enabled listener and blocks until one of them fails
// or ctx is canceled.  HTTP listeners shut down gracefully; the RTMP
// listener cannot (joy4 has no stop), so its sessions end via ctx and
// the process exits.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, len(s.httpSrvs)+1)

	go func() {
		errc <- s.rtmp.ListenAndServe(ctx)
	}()
	for _, srv := range s.httpSrvs {
		srv := srv
		glog.Infof("Starting HTTP server on %v", srv.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		glog.Infof("Shutting down")
	case err = <-errc:
		glog.Errorf("Listener failed: %v", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range s.httpSrvs {
		srv.Shutdown(sctx)
	}
	return err
}
