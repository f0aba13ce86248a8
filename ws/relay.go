package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Relay carries frames between hub instances. Publish must not deliver a
// frame back to the instance that sent it.
type Relay interface {
	Publish(ctx context.Context, frame []byte) error
	// Subscribe blocks, calling deliver for every frame from another
	// instance, until ctx is done.
	Subscribe(ctx context.Context, deliver func(frame []byte)) error
	Close() error
}

func (h *Hub) publish(frame []byte) {
	if h.outbox == nil {
		return
	}
	select {
	case h.outbox <- frame:
	default:
		h.metrics.RelayDropped()
	}
}

// Run pumps frames to and from the relay until ctx is done. A failed
// subscription is retried with capped exponential backoff. Without a relay
// it only waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}

	go func() {
		for {
			select {
			case frame := <-h.outbox:
				if err := h.relay.Publish(ctx, frame); err != nil && ctx.Err() == nil {
					h.log.Warn("relay_publish", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	deliver := func(frame []byte) {
		h.fanOut(nil, frame)
	}

	backoff := h.retryMin
	for {
		started := time.Now()
		err := h.relay.Subscribe(ctx, deliver)
		if ctx.Err() != nil {
			return nil
		}

		// a subscription that held for a while starts over from the minimum
		if time.Since(started) > h.retryMax {
			backoff = h.retryMin
		}
		h.log.Warn("relay_subscribe", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff = min(backoff*2, h.retryMax)
	}
}

type envelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

func wrapFrame(origin string, frame []byte) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Frame: frame})
}

func unwrapFrame(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, err
	}
	if env.Origin == "" || len(env.Frame) == 0 {
		return envelope{}, errors.New("incomplete relay envelope")
	}
	return env, nil
}

// RedisRelay fans frames out over a Redis pub/sub channel.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *zap.Logger
}

func NewRedisRelay(url, channel, origin string, log *zap.Logger) (*RedisRelay, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &RedisRelay{
		rdb:     redis.NewClient(opt),
		channel: channel,
		origin:  origin,
		log:     log,
	}, nil
}

func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRelay) Publish(ctx context.Context, frame []byte) error {
	payload, err := wrapFrame(r.origin, frame)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(frame []byte)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := unwrapFrame([]byte(msg.Payload))
			if err != nil {
				r.log.Debug("relay_bad_envelope", zap.Error(err))
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			deliver(env.Frame)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.rdb.Close()
}
