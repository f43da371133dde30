package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "zerogap:notifications"

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	if n.Kind == KindError {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "notification", "id", n.ID, "type", n.Kind, "message", n.Message)
	return nil
}

// Publisher is the subset of a go-redis client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes notifications as JSON on a pub/sub channel so other
// consoles can mirror them.
type RedisSink struct {
	client  Publisher
	channel string
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Deliver(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", s.channel, err)
	}
	return nil
}

// WriterSink prints one line per notification, for terminal use.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := "+"
	if n.Kind == KindError {
		marker = "!"
	}
	_, err := fmt.Fprintf(s.w, "[%s] %s\n", marker, n.Message)
	return err
}
