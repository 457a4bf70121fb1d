// Package auth decides who may publish to a stream name.  Publish URLs
// take the form rtmp://host/app/key; the key part must match the key
// stored for the app part.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrRejected = errors.New("auth rejected")

// Authorizer is consulted before a publisher acquires a hub and before a
// viewer subscribes.
type Authorizer interface {
	AuthorizePublish(ctx context.Context, app, key string) error
	AuthorizeSubscribe(ctx context.Context, name string) error
}

// SplitStreamKey separates the app part of a stream name from its
// trailing key, e.g. "live/foo" -> ("live", "foo").  A name without a
// slash has an empty key.
func SplitStreamKey(name string) (app, key string) {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// Noop allows everything; used when auth_enable is off.
type Noop struct{}

func (Noop) AuthorizePublish(context.Context, string, string) error { return nil }
func (Noop) AuthorizeSubscribe(context.Context, string) error       { return nil }

// Static authorizes against a fixed app->key table.  Handy for tests and
// keyfile deployments.
type Static struct {
	keys map[string]string
}

func NewStatic(keys map[string]string) *Static {
	return &Static{keys: keys}
}

func (s *Static) AuthorizePublish(_ context.Context, app, key string) error {
	if key == "" {
		return ErrRejected
	}
	if stored, ok := s.keys[app]; ok && stored == key {
		return nil
	}
	return ErrRejected
}

func (s *Static) AuthorizeSubscribe(context.Context, string) error { return nil }

// keyPrefix namespaces the stream keys inside the shared Redis.
const keyPrefix = "luma:stream_key:"

// Redis looks stream keys up in Redis: the value at luma:stream_key:{app}
// must equal the publisher's key.  Viewing is open.
type Redis struct {
	client *redis.Client
}

// NewRedis builds a client for the Redis named by url
// (redis://host:port/db).  Only the URL is checked here; the connection
// is opened on first use.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

func (r *Redis) AuthorizePublish(ctx context.Context, app, key string) error {
	if key == "" {
		return ErrRejected
	}
	stored, err := r.client.Get(ctx, keyPrefix+app).Result()
	if err == redis.Nil {
		return ErrRejected
	}
	if err != nil {
		return err
	}
	if stored != key {
		return ErrRejected
	}
	return nil
}

func (r *Redis) AuthorizeSubscribe(context.Context, string) error { return nil }

// Client exposes the underlying connection for collaborators that share
// the same Redis, like the event sender.
func (r *Redis) Client() *redis.Client {
	return r.client
}
