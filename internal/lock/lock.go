// Package lock implements advisory locks on Redis.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out expiring locks keyed by name. A lock only ever
// releases the token it set, so an expired lock taken over by another holder
// is left alone.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	log    *logrus.Entry
}

func NewRedisLocker(rdb *redis.Client, log *logrus.Entry) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "lock:", log: log}
}

// Acquire tries once to take key for ttl.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	full := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// detached from ctx so a cancelled run still frees its lock
		if err := releaseScript.Run(context.Background(), l.rdb, []string{full}, token).Err(); err != nil {
			// the key still expires after ttl
			l.log.WithError(err).WithField("key", full).Warn("lock release failed")
		}
	}
	return release, true, nil
}
