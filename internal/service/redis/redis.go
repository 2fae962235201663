package redis

import (
	"context"
	"time"

	"keychat/internal/cryptographic/pki"

	"github.com/redis/go-redis/v9"
)

type (
	// Inbox holds envelopes for recipients that are offline. Each recipient
	// has one list; it expires ttl after the last push.
	Inbox struct {
		rdb *redis.Client
		ttl time.Duration
	}
)

func NewInbox(rdb *redis.Client, ttl time.Duration) *Inbox {
	return &Inbox{
		rdb: rdb,
		ttl: ttl,
	}
}

func inboxKey(to pki.PublicKey) string {
	return "inbox:" + to.String()
}

func (r *Inbox) Push(ctx context.Context, to pki.PublicKey, msg []byte) error {
	key := inboxKey(to)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, msg)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

// Requeue puts msgs back at the head of to's list so they are drained before
// anything pushed since.
func (r *Inbox) Requeue(ctx context.Context, to pki.PublicKey, msgs [][]byte) error {
	if len(msgs) == 0 {
		return nil
	}

	// LPUSH prepends its arguments one at a time
	vals := make([]any, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		vals = append(vals, msgs[i])
	}

	key := inboxKey(to)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, vals...)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

// Drain returns the queued messages for to in arrival order and empties the
// list in the same transaction.
func (r *Inbox) Drain(ctx context.Context, to pki.PublicKey) ([][]byte, error) {
	key := inboxKey(to)

	var lrange *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	vals := lrange.Val()
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}
