package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/gavel/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultRedisChannel = "gavel.events"
	redisPublishTimeout = 2 * time.Second
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes every event as JSON on a Redis pub/sub channel so
// analytics consumers outside the process can follow the session stream.
type RedisSink struct {
	client  publisher
	channel string
	log     *zap.Logger
}

func NewRedisSink(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*RedisSink, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis events addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis events sink unreachable", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return newRedisSink(client, cfg.Redis.EventsChannel, log), nil
}

func newRedisSink(client publisher, channel string, log *zap.Logger) *RedisSink {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisSink{
		client:  client,
		channel: channel,
		log:     log.Named("events.redis"),
	}
}

func (s *RedisSink) Notify(ctx context.Context, event Event) {
	if s == nil || s.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Warn("encode event failed", zap.String("event_kind", string(event.Kind)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisPublishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.log.Warn("publish event failed",
			zap.String("channel", s.channel),
			zap.String("event_kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}
