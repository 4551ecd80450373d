// Package events records media lifecycle changes on a Redis stream so other
// processes can follow what the generator writes and removes.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JoynerLucas-arch/openjourney-joyner/internal/models"
)

type Action string

const (
	ActionGenerated Action = "generated"
	ActionDeleted   Action = "deleted"
	ActionSwept     Action = "swept"
)

// streamMaxLen caps the stream; older entries are trimmed approximately.
const streamMaxLen = 10000

type Event struct {
	ID       string
	Action   Action
	Type     models.MediaType
	Filename string
	URL      string
	Prompt   string
	TaskID   string
	Vendor   models.Vendor
	At       time.Time
}

func (e Event) values() map[string]any {
	return map[string]any{
		"action":   string(e.Action),
		"type":     string(e.Type),
		"filename": e.Filename,
		"url":      e.URL,
		"prompt":   e.Prompt,
		"task_id":  e.TaskID,
		"vendor":   string(e.Vendor),
		"at":       e.At.UTC().Format(time.RFC3339),
	}
}

func fromMessage(msg redis.XMessage) Event {
	str := func(key string) string {
		if v, ok := msg.Values[key].(string); ok {
			return v
		}
		return ""
	}
	at, _ := time.Parse(time.RFC3339, str("at"))
	return Event{
		ID:       msg.ID,
		Action:   Action(str("action")),
		Type:     models.MediaType(str("type")),
		Filename: str("filename"),
		URL:      str("url"),
		Prompt:   str("prompt"),
		TaskID:   str("task_id"),
		Vendor:   models.Vendor(str("vendor")),
		At:       at,
	}
}

// Publisher appends events with XADD. A nil client makes every call a no-op.
type Publisher struct {
	client *redis.Client
	stream string
	log    zerolog.Logger
}

func NewPublisher(client *redis.Client, stream string, log zerolog.Logger) *Publisher {
	return &Publisher{client: client, stream: stream, log: log}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if !p.Enabled() {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: e.values(),
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Handler receives decoded events. Returning an error leaves a group message
// unacknowledged so it is redelivered to the group.
type Handler func(ctx context.Context, e Event) error

// Reader follows the stream, either as a plain tail or as a consumer group
// member.
type Reader struct {
	client    *redis.Client
	stream    string
	block     time.Duration
	claimIdle time.Duration
	log       zerolog.Logger
}

func NewReader(client *redis.Client, stream string, log zerolog.Logger) *Reader {
	return &Reader{client: client, stream: stream, block: 5 * time.Second, log: log}
}

// WithClaimInterval makes Consume take over group messages left pending by
// other consumers for longer than d. Zero disables claiming.
func (r *Reader) WithClaimInterval(d time.Duration) *Reader {
	r.claimIdle = d
	return r
}

// Tail delivers entries after from ("$" for only new ones, "0" for the whole
// stream) until ctx is cancelled.
func (r *Reader) Tail(ctx context.Context, from string, handle Handler) error {
	last := from
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{r.stream, last},
			Count:   10,
			Block:   r.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xread %s: %w", r.stream, err)
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				last = msg.ID
				if err := handle(ctx, fromMessage(msg)); err != nil {
					return err
				}
			}
		}
	}
}

// Consume reads as consumer within group, creating the group if needed, and
// acknowledges each message its handler accepts.
func (r *Reader) Consume(ctx context.Context, group, consumer string, handle Handler) error {
	if err := r.client.XGroupCreateMkStream(ctx, r.stream, group, "0").Err(); err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", group, err)
	}

	var claims <-chan time.Time
	if r.claimIdle > 0 {
		ticker := time.NewTicker(r.claimIdle)
		defer ticker.Stop()
		claims = ticker.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.readGroup(ctx, group, consumer, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error().Err(err).Msg("stream read error")
			if err := sleep(ctx, 2*time.Second); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-claims:
			if err := r.claimStalled(ctx, group, consumer, handle); err != nil {
				r.log.Error().Err(err).Msg("claim stalled messages failed")
			}
		default:
		}
	}
}

func (r *Reader) readGroup(ctx context.Context, group, consumer string, handle Handler) error {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.stream, ">"},
		Count:    10,
		Block:    r.block,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		r.dispatch(ctx, group, stream.Messages, handle)
	}
	return nil
}

func (r *Reader) claimStalled(ctx context.Context, group, consumer string, handle Handler) error {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		return fmt.Errorf("xpending %s: %w", r.stream, err)
	}

	for _, entry := range pending {
		if entry.Idle < r.claimIdle {
			continue
		}
		msgs, err := r.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   r.stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  r.claimIdle,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			r.log.Error().Err(err).Str("message_id", entry.ID).Msg("claim failed")
			continue
		}
		r.dispatch(ctx, group, msgs, handle)
	}
	return nil
}

func (r *Reader) dispatch(ctx context.Context, group string, msgs []redis.XMessage, handle Handler) {
	for _, msg := range msgs {
		if err := handle(ctx, fromMessage(msg)); err != nil {
			r.log.Error().Err(err).Str("message_id", msg.ID).Msg("handle message failed")
			continue
		}
		if err := r.client.XAck(ctx, r.stream, group, msg.ID).Err(); err != nil {
			r.log.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
