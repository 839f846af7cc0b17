package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prepware/examhall-backend/internal/config"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Directory is the shared, subscribable state layer every client and the
// lifecycle manager agree through. It holds the two singleton records
// (global exam status, countdown) in Redis and fans status writes out over
// PubSub so attached exam runtimes react push-style instead of polling.
type Directory struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewDirectory creates a Directory backed by the given Redis client.
func NewDirectory(rdb *redis.Client, log zerolog.Logger) *Directory {
	return &Directory{
		rdb: rdb,
		log: log.With().Str("component", "state_directory").Logger(),
	}
}

// Status reads the global exam status. Returns (nil, nil) when the record
// is absent; callers must treat absence as "stopped".
func (d *Directory) Status(ctx context.Context) (*model.GlobalExamStatus, error) {
	raw, err := d.rdb.Get(ctx, config.CacheKey.ExamStatusKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exam status: %w", err)
	}

	var status model.GlobalExamStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("decode exam status: %w", err)
	}
	return &status, nil
}

// SetStatus overwrites the global exam status and broadcasts the new value.
// The write and the publish are last-write-wins; the lifecycle manager is
// the only writer so no locking is needed.
func (d *Directory) SetStatus(ctx context.Context, status *model.GlobalExamStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode exam status: %w", err)
	}

	if err := d.rdb.Set(ctx, config.CacheKey.ExamStatusKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("set exam status: %w", err)
	}

	// Broadcast is best-effort: subscribers also see the authoritative value
	// on their next read, the publish only makes them see it sooner.
	if err := d.rdb.Publish(ctx, config.CacheKey.ExamStatusChannel(), raw).Err(); err != nil {
		d.log.Warn().Err(err).Msg("Status publish failed")
	}
	return nil
}

// ClearStatus writes the fully-nulled status record. This single write is
// the universal "force everyone out" signal.
func (d *Directory) ClearStatus(ctx context.Context) error {
	return d.SetStatus(ctx, model.ClearedStatus())
}

// DeleteStatus removes the status record entirely and broadcasts a null so
// subscribers observe the deletion.
func (d *Directory) DeleteStatus(ctx context.Context) error {
	if err := d.rdb.Del(ctx, config.CacheKey.ExamStatusKey()).Err(); err != nil {
		return fmt.Errorf("delete exam status: %w", err)
	}
	if err := d.rdb.Publish(ctx, config.CacheKey.ExamStatusChannel(), "null").Err(); err != nil {
		d.log.Warn().Err(err).Msg("Status delete publish failed")
	}
	return nil
}

// SubscribeStatus delivers every global status update until ctx is done.
// A nil element means the record was deleted or could not be decoded as a
// status; receivers must treat it as "stopped". The returned cancel func
// closes the underlying PubSub; always call it on teardown.
func (d *Directory) SubscribeStatus(ctx context.Context) (<-chan *model.GlobalExamStatus, func()) {
	pubsub := d.rdb.Subscribe(ctx, config.CacheKey.ExamStatusChannel())
	out := make(chan *model.GlobalExamStatus, 8)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var status *model.GlobalExamStatus
			if err := json.Unmarshal([]byte(msg.Payload), &status); err != nil {
				d.log.Warn().Err(err).Msg("Undecodable status event")
				status = nil
			}
			select {
			case out <- status:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}

// Countdown reads the countdown record. Returns (nil, nil) when absent.
func (d *Directory) Countdown(ctx context.Context) (*model.CountdownState, error) {
	raw, err := d.rdb.Get(ctx, config.CacheKey.ExamCountdownKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get countdown: %w", err)
	}

	var state model.CountdownState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode countdown: %w", err)
	}
	return &state, nil
}

// SetCountdown overwrites the countdown record.
func (d *Directory) SetCountdown(ctx context.Context, state *model.CountdownState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode countdown: %w", err)
	}
	if err := d.rdb.Set(ctx, config.CacheKey.ExamCountdownKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("set countdown: %w", err)
	}
	return nil
}

// ClearCountdown writes the inactive countdown record.
func (d *Directory) ClearCountdown(ctx context.Context) error {
	return d.SetCountdown(ctx, &model.CountdownState{IsActive: false})
}

// ServerTime returns the authoritative clock all timing decisions are
// corrected against. Redis TIME is the single source shared by every
// server instance and every connected client.
func (d *Directory) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := d.rdb.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}
	return t, nil
}
