// Package event publishes stream lifecycle records for downstream
// consumers (billing, thumbnails, chat presence) to pick up.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
)

// eventList is the Redis list consumers pop from.
const eventList = "luma:events"

const sendTimeout = 2 * time.Second

// StreamEvent is one lifecycle record.
type StreamEvent struct {
	Event  string `json:"event"`
	Stream string `json:"stream"`
	At     int64  `json:"at"`
}

// Sender delivers lifecycle events.  Delivery is best-effort; a stream
// never waits on it.
type Sender interface {
	PublishStart(name string)
	PublishStop(name string)
}

// Nop drops every event; used when Redis is not configured.
type Nop struct{}

func (Nop) PublishStart(string) {}
func (Nop) PublishStop(string)  {}

// RedisSender LPUSHes JSON records onto a Redis list.
type RedisSender struct {
	client *redis.Client
}

func NewRedisSender(client *redis.Client) *RedisSender {
	return &RedisSender{client: client}
}

func (s *RedisSender) PublishStart(name string) { go s.send("publish_start", name) }
func (s *RedisSender) PublishStop(name string)  { go s.send("publish_stop", name) }

func (s *RedisSender) send(event, name string) {
	data, err := json.Marshal(StreamEvent{Event: event, Stream: name, At: time.Now().Unix()})
	if err != nil {
		glog.Errorf("Could not encode %v event for %v: %v", event, name, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.client.LPush(ctx, eventList, data).Err(); err != nil {
		glog.Errorf("Could not send %v event for %v: %v", event, name, err)
	}
}
