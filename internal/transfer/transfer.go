package transfer

import (
	"Go_Uploader/internal/session"
	"Go_Uploader/model"
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Transferer moves the bytes of one chunk.
type Transferer = session.Transferer

// Purger removes whatever a backend wrote for a file.
type Purger interface {
	Purge(ctx context.Context, file *model.FileRecord) error
}

type wrapper interface {
	Unwrap() Transferer
}

// Purge finds a Purger in the wrapper chain of t and runs it. Backends that
// keep nothing are skipped.
func Purge(ctx context.Context, t Transferer, file *model.FileRecord) error {
	for t != nil {
		if p, ok := t.(Purger); ok {
			return p.Purge(ctx, file)
		}
		w, ok := t.(wrapper)
		if !ok {
			return nil
		}
		t = w.Unwrap()
	}
	return nil
}

// Func adapts a function to Transferer.
type Func func(ctx context.Context, file session.File, chunkNumber int, chunkSize int64) error

func (f Func) TransferChunk(ctx context.Context, file session.File, chunkNumber int, chunkSize int64) error {
	return f(ctx, file, chunkNumber, chunkSize)
}

// Delay simulates a transfer that takes d per chunk.
func Delay(d time.Duration) Transferer {
	return Func(func(ctx context.Context, _ session.File, _ int, _ int64) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	})
}

type limited struct {
	next    Transferer
	limiter *rate.Limiter
}

// Limited lets at most limiter's rate of chunks through next. Wrap once and
// share the result between sessions to throttle globally.
func Limited(next Transferer, limiter *rate.Limiter) Transferer {
	if limiter == nil {
		return next
	}
	return &limited{next: next, limiter: limiter}
}

// NewLimiter builds a chunk limiter; r <= 0 means unlimited.
func NewLimiter(r float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if r <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

func (l *limited) TransferChunk(ctx context.Context, file session.File, chunkNumber int, chunkSize int64) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return l.next.TransferChunk(ctx, file, chunkNumber, chunkSize)
}

func (l *limited) Unwrap() Transferer {
	return l.next
}

type timeout struct {
	next Transferer
	d    time.Duration
}

// WithTimeout bounds every chunk transfer by d. d <= 0 returns next unchanged.
func WithTimeout(next Transferer, d time.Duration) Transferer {
	if d <= 0 {
		return next
	}
	return &timeout{next: next, d: d}
}

func (t *timeout) TransferChunk(ctx context.Context, file session.File, chunkNumber int, chunkSize int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.TransferChunk(ctx, file, chunkNumber, chunkSize)
}

func (t *timeout) Unwrap() Transferer {
	return t.next
}
