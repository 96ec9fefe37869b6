package repo

import (
	"Go_Uploader/config"
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var Redis *redis.Client

// ErrLockBusy is returned when another holder owns the lock.
var ErrLockBusy = errors.New("lock is busy")

// RedisLock is a single-holder lock identified by a random token, so only
// its owner can refresh or release it.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// InitRedis connects the client shared by the session registry, the control
// flags and the snapshot cache.
func InitRedis() {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(config.AppConfig.RedisHost, config.AppConfig.RedisPort),
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("init redis fail: %v", err)
	}
	log.Printf("init redis success, db %d", config.AppConfig.RedisDB)
	Redis = client
}

// NewRedisLock returns an unlocked lock on key.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock takes the lock or fails with ErrLockBusy; it does not wait.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Unlock releases the lock if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
	l.token = ""
	return err
}

// Refresh extends the lock TTL while it is still held by this token.
func (l *RedisLock) Refresh(ctx context.Context) error {
	if l.token == "" {
		return ErrLockBusy
	}
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockBusy
	}
	return nil
}

// KeepAlive refreshes the lock every ttl/3 until ctx ends.
func (l *RedisLock) KeepAlive(ctx context.Context) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Printf("redis lock: refresh %s failed: %v", l.key, err)
			}
		}
	}
}

const (
	controlKeyPaused    = "upload:control:paused"
	controlKeyCancelled = "upload:control:cancelled"
)

// ControlFlags keeps pause/cancel requests in Redis so that sessions running
// in another process can poll them.
type ControlFlags struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewControlFlags builds Redis-backed control flags; ttl bounds stale flags.
func NewControlFlags(rdb *redis.Client, ttl time.Duration) *ControlFlags {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ControlFlags{rdb: rdb, ttl: ttl}
}

func (f *ControlFlags) set(ctx context.Context, prefix, name string, on bool) error {
	key := prefix + ":" + name
	if !on {
		return f.rdb.Del(ctx, key).Err()
	}
	return f.rdb.Set(ctx, key, "1", f.ttl).Err()
}

func (f *ControlFlags) get(ctx context.Context, prefix, name string) (bool, error) {
	n, err := f.rdb.Exists(ctx, prefix+":"+name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetPaused raises or clears the pause flag of name.
func (f *ControlFlags) SetPaused(ctx context.Context, name string, paused bool) error {
	return f.set(ctx, controlKeyPaused, name, paused)
}

// SetCancelled raises or clears the cancel flag of name.
func (f *ControlFlags) SetCancelled(ctx context.Context, name string, cancelled bool) error {
	return f.set(ctx, controlKeyCancelled, name, cancelled)
}

// Paused reads the pause flag of name.
func (f *ControlFlags) Paused(ctx context.Context, name string) (bool, error) {
	return f.get(ctx, controlKeyPaused, name)
}

// Cancelled reads the cancel flag of name.
func (f *ControlFlags) Cancelled(ctx context.Context, name string) (bool, error) {
	return f.get(ctx, controlKeyCancelled, name)
}

// Reset clears both flags, used when a new session starts for name.
func (f *ControlFlags) Reset(ctx context.Context, name string) error {
	return f.rdb.Del(ctx, controlKeyPaused+":"+name, controlKeyCancelled+":"+name).Err()
}
