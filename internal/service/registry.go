package service

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/session"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAlreadyActive is returned when a session for the name is running.
	ErrAlreadyActive = errors.New("upload is already active")
	// ErrNotActive is returned by control requests for names with no session.
	ErrNotActive = errors.New("upload is not active")
)

const lockKeyPrefix = "lock:upload:"

// Entry is the registry slot of one active session.
type Entry struct {
	Name    string
	Control *session.Control

	done chan struct{}
	lock *repo.RedisLock
	stop context.CancelFunc
	once sync.Once
	mu   sync.Mutex
	sess *session.Session
}

// Done is closed once the session finished and the slot was released.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

func (e *Entry) setSession(s *session.Session) {
	e.mu.Lock()
	e.sess = s
	e.mu.Unlock()
}

// Session returns the session bound to the slot, nil before it is built.
func (e *Entry) Session() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// Registry allows one active session per file name. With a Redis client the
// slot is also held cluster-wide through a lock that is refreshed while the
// session runs.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	rdb     *redis.Client
	lockTTL time.Duration
}

// NewRegistry builds a registry; rdb may be nil for a single process.
func NewRegistry(rdb *redis.Client, lockTTL time.Duration) *Registry {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Registry{
		entries: make(map[string]*Entry),
		rdb:     rdb,
		lockTTL: lockTTL,
	}
}

func lockKey(name string) string {
	return lockKeyPrefix + name
}

// Acquire reserves the slot of name.
func (r *Registry) Acquire(ctx context.Context, name string) (*Entry, error) {
	e := &Entry{
		Name:    name,
		Control: session.NewControl(),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	if _, ok := r.entries[name]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	r.entries[name] = e
	r.mu.Unlock()

	if r.rdb == nil {
		return e, nil
	}

	lock := repo.NewRedisLock(r.rdb, lockKey(name), r.lockTTL)
	if err := lock.Lock(ctx); err != nil {
		r.remove(e)
		if errors.Is(err, repo.ErrLockBusy) {
			return nil, fmt.Errorf("%w: held by another worker", ErrAlreadyActive)
		}
		return nil, fmt.Errorf("acquire upload lock: %w", err)
	}
	keepCtx, stop := context.WithCancel(context.Background())
	e.lock = lock
	e.stop = stop
	go lock.KeepAlive(keepCtx)
	return e, nil
}

// Release frees the slot and wakes everyone waiting on Done.
func (r *Registry) Release(e *Entry) {
	e.once.Do(func() {
		if e.stop != nil {
			e.stop()
		}
		if e.lock != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := e.lock.Unlock(ctx); err != nil {
				log.Printf("upload registry: unlock %s failed: %v", e.Name, err)
			}
			cancel()
		}
		r.remove(e)
		close(e.done)
	})
}

func (r *Registry) remove(e *Entry) {
	r.mu.Lock()
	if r.entries[e.Name] == e {
		delete(r.entries, e.Name)
	}
	r.mu.Unlock()
}

// Get returns the local slot of name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	return e, ok
}

// Len returns the number of local slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// HeldRemotely reports whether another process holds the lock of name.
func (r *Registry) HeldRemotely(ctx context.Context, name string) (bool, error) {
	if r.rdb == nil {
		return false, nil
	}
	if _, ok := r.Get(name); ok {
		return false, nil
	}
	n, err := r.rdb.Exists(ctx, lockKey(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
