package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	joy4rtmp "github.com/livepeer/joy4/format/rtmp"

	"github.com/lumastream/luma/auth"
	"github.com/lumastream/luma/event"
	"github.com/lumastream/luma/hls"
	"github.com/lumastream/luma/media"
	"github.com/lumastream/luma/record"
	"github.com/lumastream/luma/stream"
)

const (
	// defaultIngestTimeout ends a publish session that stops sending.
	defaultIngestTimeout = 10 * time.Second
	// defaultPlayIdleTimeout ends a playback session whose hub goes
	// quiet without closing.
	defaultPlayIdleTimeout = 30 * time.Second
)

var errInvalidPath = errors.New("invalid stream path")

// RTMPServer terminates RTMP: publishers on HandlePublish become ingest
// sessions feeding a hub, players on HandlePlay become egress sessions
// draining one.
type RTMPServer struct {
	addr       string
	registry   *stream.Registry
	authorizer auth.Authorizer
	events     event.Sender
	hls        *hls.Service
	recorder   *record.Recorder

	ingestTimeout   time.Duration
	playIdleTimeout time.Duration
}

func NewRTMPServer(port int, registry *stream.Registry, authorizer auth.Authorizer, events event.Sender) *RTMPServer {
	return &RTMPServer{
		addr:            fmt.Sprintf(":%d", port),
		registry:        registry,
		authorizer:      authorizer,
		events:          events,
		ingestTimeout:   defaultIngestTimeout,
		playIdleTimeout: defaultPlayIdleTimeout,
	}
}

// EnableHLS makes every publish session feed an HLS segmenter.
func (s *RTMPServer) EnableHLS(svc *hls.Service) {
	s.hls = svc
}

// EnableRecording archives every publish session to FLV.
func (s *RTMPServer) EnableRecording(r *record.Recorder) {
	s.recorder = r
}

// ListenAndServe blocks serving RTMP until the listener fails.  joy4's
// server has no shutdown hook; canceling ctx ends the per-connection
// sessions.
func (s *RTMPServer) ListenAndServe(ctx context.Context) error {
	srv := &joy4rtmp.Server{
		Addr:          s.addr,
		HandlePublish: func(conn *joy4rtmp.Conn) { s.handlePublish(ctx, conn) },
		HandlePlay:    func(conn *joy4rtmp.Conn) { s.handlePlay(ctx, conn) },
	}
	glog.Infof("Starting RTMP server on %v", s.addr)
	return srv.ListenAndServe()
}

func (s *RTMPServer) handlePublish(ctx context.Context, conn *joy4rtmp.Conn) {
	defer conn.Close()

	name, err := streamName(conn.URL.Path)
	if err != nil {
		glog.Errorf("Rejecting publisher with bad path %v", conn.URL.Path)
		return
	}

	app, key := auth.SplitStreamKey(name)
	if err := s.authorizer.AuthorizePublish(ctx, app, key); err != nil {
		glog.Errorf("Rejecting unauthorized publisher for stream %v: %v", name, err)
		return
	}

	token := uuid.New()
	hub, err := s.registry.GetOrCreateForPublisher(name, token)
	if err != nil {
		glog.Errorf("Rejecting publisher for stream %v: %v", name, err)
		return
	}
	glog.Infof("Publisher connected for stream %v", name)
	s.events.PublishStart(name)

	if s.hls != nil {
		s.hls.Start(ctx, hub)
	}
	if s.recorder != nil {
		s.recorder.Start(ctx, hub)
	}

	defer func() {
		hub.ReleasePublisher(token)
		s.registry.NotifyPublisherLeft(name, hub)
		s.events.PublishStop(name)
	}()

	if err := s.ingest(ctx, conn, hub); err != nil {
		glog.Errorf("Publish session for stream %v ended: %v", name, err)
		return
	}
	glog.Infof("Publisher left stream %v", name)
}

// ingest runs the publish loop: announce sequence headers, then feed
// every demuxed packet to the hub until EOF or inactivity.
func (s *RTMPServer) ingest(ctx context.Context, conn *joy4rtmp.Conn, hub *stream.Hub) error {
	streams, err := conn.Streams()
	if err != nil {
		return err
	}
	headers, err := media.SequenceHeaders(streams)
	if err != nil {
		return err
	}
	for _, pkt := range headers {
		if err := hub.Publish(pkt); err != nil {
			return err
		}
	}

	nc := conn.NetConn()
	for {
		if err := nc.SetReadDeadline(time.Now().Add(s.ingestTimeout)); err != nil {
			return err
		}
		pkt, err := conn.ReadPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sp, ok := media.FromAV(pkt, streams); ok {
			if err := hub.Publish(sp); err != nil {
				return err
			}
		}
	}
}

func (s *RTMPServer) handlePlay(ctx context.Context, conn *joy4rtmp.Conn) {
	defer conn.Close()

	name, err := streamName(conn.URL.Path)
	if err != nil {
		glog.Errorf("Rejecting player with bad path %v", conn.URL.Path)
		return
	}
	if err := s.authorizer.AuthorizeSubscribe(ctx, name); err != nil {
		glog.Errorf("Rejecting unauthorized player for stream %v: %v", name, err)
		return
	}

	hub, err := s.registry.LookupForSubscriber(name)
	if err != nil {
		glog.Infof("Player requested unknown stream %v", name)
		return
	}
	ch, err := hub.Subscribe(stream.SubscribeOptions{
		Tag: "rtmp:" + conn.NetConn().RemoteAddr().String(),
	})
	if err != nil {
		glog.Infof("Player raced teardown of stream %v", name)
		return
	}
	defer hub.Unsubscribe(ch)

	glog.Infof("Player %v attached to stream %v", ch.Tag(), name)
	if err := media.CopyFromChannel(ctx, ch, conn, s.playIdleTimeout); err != nil {
		glog.V(2).Infof("Play session %v ended: %v", ch.Tag(), err)
		return
	}
	glog.Infof("Play session %v finished with stream %v", ch.Tag(), name)
}

// streamName extracts "app/key" from an RTMP URL path.
func streamName(urlPath string) (string, error) {
	name := strings.Trim(urlPath, "/")
	if name == "" {
		return "", errInvalidPath
	}
	return name, nil
}
