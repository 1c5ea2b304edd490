// Package events publishes completed conversation turns to Redis Streams so
// other processes can follow a persona's conversations.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/nidhogg/xoxo/internal/persona"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamPrefix  = "xoxo:turns:"
	defaultMaxLen = 10000
)

// TurnEvent is the stream payload for one turn.
type TurnEvent struct {
	ID           string    `json:"-"`
	Self         string    `json:"self"`
	Partner      string    `json:"partner"`
	Stage        string    `json:"stage"`
	ThreadID     string    `json:"thread_id"`
	Outgoing     string    `json:"outgoing"`
	Reply        string    `json:"reply,omitempty"`
	MessageCount int       `json:"message_count"`
	At           time.Time `json:"at"`
}

// Bus writes and reads turn streams.
type Bus struct {
	rdb    *redis.Client
	maxLen int64
	logger *zap.Logger
}

// NewBus connects to Redis at redisURL.
func NewBus(ctx context.Context, redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, maxLen: defaultMaxLen, logger: logger}, nil
}

// StreamFor returns the stream key for a persona name.
func StreamFor(self string) string {
	return streamPrefix + persona.ShortName(self)
}

// ObserveTurn publishes the turn. It implements conversation.TurnObserver.
func (b *Bus) ObserveTurn(ctx context.Context, turn *conversation.Turn) error {
	return b.Publish(ctx, &TurnEvent{
		Self:         turn.Self,
		Partner:      turn.Partner.ID,
		Stage:        turn.Position.String(),
		ThreadID:     turn.ThreadID,
		Outgoing:     turn.Outgoing,
		Reply:        turn.Reply,
		MessageCount: turn.MessageCount,
		At:           turn.At,
	})
}

// Publish appends an event to the self stream, trimming old entries.
func (b *Bus) Publish(ctx context.Context, ev *TurnEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := StreamFor(ev.Self)
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"partner": ev.Partner,
			"data":    string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	ev.ID = id

	b.logger.Debug("published turn",
		zap.String("stream", stream),
		zap.String("partner", ev.Partner),
		zap.String("stage", ev.Stage))
	return nil
}

// Recent returns up to n of the latest events for self, newest first.
func (b *Bus) Recent(ctx context.Context, self string, n int64) ([]*TurnEvent, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, StreamFor(self), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StreamFor(self), err)
	}
	out := make([]*TurnEvent, 0, len(msgs))
	for _, m := range msgs {
		if ev, ok := decode(m); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Subscribe tails the stream of self starting after lastID ("$" for new
// events only). The channel closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, self, lastID string) <-chan *TurnEvent {
	ch := make(chan *TurnEvent, 16)
	stream := StreamFor(self)
	if lastID == "" {
		lastID = "$"
	}

	go func() {
		defer close(ch)
		for {
			if ctx.Err() != nil {
				return
			}
			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Warn("stream read failed", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, m := range r.Messages {
					lastID = m.ID
					ev, ok := decode(m)
					if !ok {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch
}

func decode(m redis.XMessage) (*TurnEvent, bool) {
	data, ok := m.Values["data"].(string)
	if !ok {
		return nil, false
	}
	var ev TurnEvent
	if json.Unmarshal([]byte(data), &ev) != nil {
		return nil, false
	}
	ev.ID = m.ID
	return &ev, true
}

// Ping checks the Redis connection.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
