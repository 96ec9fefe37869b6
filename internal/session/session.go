package session

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/model"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StatusIdle is the state of a session that has not started running.
const StatusIdle model.Status = "Idle"

const DefaultPollInterval = 500 * time.Millisecond

// File identifies the source of an upload. UploadID is filled in by the
// session from the persisted record before any chunk is transferred.
type File struct {
	Name     string
	Path     string
	Size     int64
	Owner    string
	UploadID string
}

// Transferer moves the bytes of one chunk. A returned error fails the session;
// it is never retried by the session.
type Transferer interface {
	TransferChunk(ctx context.Context, file File, chunkNumber int, chunkSize int64) error
}

type Config struct {
	File      File
	ChunkSize int64

	Store    repo.ProgressStore
	Transfer Transferer
	Signals  Signals
	Observer Observer

	// PollInterval bounds how long a paused session sleeps between checks.
	PollInterval time.Duration
}

// Session uploads one file chunk by chunk, resuming from the persisted offset.
// A Session runs at most once.
type Session struct {
	file      File
	chunkSize int64
	store     repo.ProgressStore
	transfer  Transferer
	signals   Signals
	observer  Observer
	poll      time.Duration

	started   atomic.Bool
	uploading atomic.Bool

	mu     sync.Mutex
	state  model.Status
	err    error
	record *model.FileRecord
}

// New validates cfg and builds an idle session.
func New(cfg Config) (*Session, error) {
	if cfg.File.Name == "" {
		return nil, invalidInput("new session", "file name is required")
	}
	if cfg.File.Size < 0 {
		return nil, invalidInput("new session", "file size must not be negative, got %d", cfg.File.Size)
	}
	if cfg.ChunkSize <= 0 {
		return nil, invalidInput("new session", "chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Store == nil {
		return nil, invalidInput("new session", "progress store is required")
	}
	if cfg.Transfer == nil {
		return nil, invalidInput("new session", "transfer is required")
	}
	s := &Session{
		file:      cfg.File,
		chunkSize: cfg.ChunkSize,
		store:     cfg.Store,
		transfer:  cfg.Transfer,
		signals:   cfg.Signals,
		observer:  cfg.Observer,
		poll:      cfg.PollInterval,
		state:     StatusIdle,
	}
	if s.signals == nil {
		s.signals = NewControl()
	}
	if s.observer == nil {
		s.observer = Discard
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	return s, nil
}

// Name returns the file name the session works on.
func (s *Session) Name() string {
	return s.file.Name
}

// State returns the current state of the session.
func (s *Session) State() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of a Failed session, or the context error of a
// suspended one.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Uploading reports whether the chunk loop is active.
func (s *Session) Uploading() bool {
	return s.uploading.Load()
}

func (s *Session) setState(state model.Status, err error) {
	s.mu.Lock()
	s.state = state
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Run drives the upload until it completes, fails, is cancelled, or ctx ends.
// A cancelled ctx suspends the session: the record is left Paused so a later
// session can resume it. Failures are reported through the observer, never
// returned or panicked to the caller.
func (s *Session) Run(ctx context.Context) (status model.Status) {
	if !s.started.CompareAndSwap(false, true) {
		return s.State()
	}
	if err := ctx.Err(); err != nil {
		s.setState(StatusIdle, err)
		return StatusIdle
	}
	s.uploading.Store(true)
	defer s.uploading.Store(false)

	var file *model.FileRecord
	defer func() {
		if r := recover(); r != nil {
			log.Printf("upload session: %s panicked: %v", s.file.Name, r)
			status = s.fail(ctx, file, fmt.Errorf("panic: %v", r))
		}
	}()

	file, err := s.resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.setState(StatusIdle, ctx.Err())
			return StatusIdle
		}
		return s.fail(ctx, nil, err)
	}
	s.mu.Lock()
	s.record = file
	s.mu.Unlock()
	s.file.UploadID = file.UploadID

	if err := s.ensureChunks(ctx, file); err != nil {
		if ctx.Err() != nil {
			return s.suspend(ctx, file)
		}
		return s.fail(ctx, file, err)
	}

	file.Status = model.StatusUploading
	file.ErrorMsg = ""
	if err := s.store.Upsert(ctx, file); err != nil {
		if ctx.Err() != nil {
			return s.suspend(ctx, file)
		}
		return s.fail(ctx, file, storeUnavailable("mark uploading", err))
	}
	s.setState(model.StatusUploading, nil)

	for i := file.UploadedChunks; i < file.TotalChunks; i++ {
		if s.signals.Cancelled() {
			return s.cancel(ctx, file)
		}
		if ctx.Err() != nil {
			return s.suspend(ctx, file)
		}
		if s.signals.Paused() {
			switch outcome, err := s.waitWhilePaused(ctx, file); {
			case err != nil:
				return s.fail(ctx, file, err)
			case outcome == pauseCancelled:
				return s.cancel(ctx, file)
			case outcome == pauseSuspended:
				return s.suspend(ctx, file)
			}
		}

		chunk, err := s.store.FindChunk(ctx, file.ID, i)
		if err != nil && ctx.Err() != nil {
			return s.suspend(ctx, file)
		}
		if errors.Is(err, repo.ErrNotFound) {
			return s.fail(ctx, file, &Error{
				Kind: KindChunkRecordMissing,
				Op:   fmt.Sprintf("load chunk %d", i),
				Err:  err,
			})
		}
		if err != nil {
			return s.fail(ctx, file, storeUnavailable(fmt.Sprintf("load chunk %d", i), err))
		}

		if err := s.transfer.TransferChunk(ctx, s.file, i, file.ChunkSize); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return s.suspend(ctx, file)
			}
			return s.fail(ctx, file, &Error{
				Kind: KindTransferFailure,
				Op:   fmt.Sprintf("transfer chunk %d", i),
				Err:  err,
			})
		}

		progress := float64(i+1) / float64(file.TotalChunks)
		s.notify(Event{Kind: EventProgress, FileID: file.ID, Progress: progress, Status: model.StatusUploading})

		// the chunk is already stored remotely, so its bookkeeping outlives ctx
		persistCtx := context.WithoutCancel(ctx)
		file.UploadedChunks = i + 1
		if err := s.store.Upsert(persistCtx, file); err != nil {
			return s.fail(ctx, file, storeUnavailable(fmt.Sprintf("record chunk %d", i), err))
		}
		chunk.Status = model.ChunkCompleted
		chunk.Progress = 100.0
		if err := s.store.UpsertChunk(persistCtx, chunk); err != nil {
			return s.fail(ctx, file, storeUnavailable(fmt.Sprintf("complete chunk %d", i), err))
		}
	}

	return s.complete(ctx, file)
}

func (s *Session) resolve(ctx context.Context) (*model.FileRecord, error) {
	file, err := s.store.FindByName(ctx, s.file.Name)
	switch {
	case err == nil:
		if file.Size != s.file.Size {
			return nil, invalidInput("resume", "size of %q changed from %d to %d", s.file.Name, file.Size, s.file.Size)
		}
		if file.ChunkSize != s.chunkSize {
			log.Printf("upload session: %s keeps chunk size %d of its record, requested %d",
				s.file.Name, file.ChunkSize, s.chunkSize)
		}
		if s.file.Path != "" {
			file.Path = s.file.Path
		}
		if s.file.Owner != "" {
			file.Owner = s.file.Owner
		}
		return file, nil
	case errors.Is(err, repo.ErrNotFound):
		total, err := PlanChunks(s.file.Size, s.chunkSize)
		if err != nil {
			return nil, err
		}
		file = &model.FileRecord{
			UploadID:       uuid.NewString(),
			Name:           s.file.Name,
			Owner:          s.file.Owner,
			Path:           s.file.Path,
			Size:           s.file.Size,
			ChunkSize:      s.chunkSize,
			TotalChunks:    total,
			UploadedChunks: 0,
			Status:         model.StatusPending,
		}
		if err := s.store.Upsert(ctx, file); err != nil {
			return nil, storeUnavailable("create file record", err)
		}
		return file, nil
	default:
		return nil, storeUnavailable("find file record", err)
	}
}

// ensureChunks creates the pending chunk set the first time chunk work begins.
// A set left incomplete by a crash is filled up to TotalChunks.
func (s *Session) ensureChunks(ctx context.Context, file *model.FileRecord) error {
	if file.TotalChunks == 0 {
		return nil
	}
	existing, err := s.store.FindChunks(ctx, file.ID)
	if err != nil {
		return storeUnavailable("find chunks", err)
	}
	if len(existing) >= file.TotalChunks {
		return nil
	}
	have := make(map[int]struct{}, len(existing))
	for _, c := range existing {
		have[c.ChunkNumber] = struct{}{}
	}
	missing := make([]model.ChunkRecord, 0, file.TotalChunks-len(existing))
	for i := 0; i < file.TotalChunks; i++ {
		if _, ok := have[i]; ok {
			continue
		}
		missing = append(missing, model.NewPendingChunk(file.ID, i))
	}
	if err := s.store.CreateChunks(ctx, missing); err != nil {
		return storeUnavailable("create chunks", err)
	}
	return nil
}

type pauseOutcome int

const (
	pauseResumed pauseOutcome = iota
	pauseCancelled
	pauseSuspended
)

// waitWhilePaused polls the signals until the pause is lifted. Cancellation is
// checked on every wake-up.
func (s *Session) waitWhilePaused(ctx context.Context, file *model.FileRecord) (pauseOutcome, error) {
	file.Status = model.StatusPaused
	if err := s.store.Upsert(ctx, file); err != nil {
		if ctx.Err() != nil {
			return pauseSuspended, nil
		}
		return pauseResumed, storeUnavailable("mark paused", err)
	}
	s.setState(model.StatusPaused, nil)
	log.Printf("upload session: %s paused at chunk %d/%d", file.Name, file.UploadedChunks, file.TotalChunks)

	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	for {
		if s.signals.Cancelled() {
			return pauseCancelled, nil
		}
		if !s.signals.Paused() {
			break
		}
		select {
		case <-ctx.Done():
			return pauseSuspended, nil
		case <-timer.C:
			timer.Reset(s.poll)
		}
	}

	file.Status = model.StatusUploading
	if err := s.store.Upsert(ctx, file); err != nil {
		if ctx.Err() != nil {
			return pauseSuspended, nil
		}
		return pauseResumed, storeUnavailable("mark resumed", err)
	}
	s.setState(model.StatusUploading, nil)
	log.Printf("upload session: %s resumed at chunk %d/%d", file.Name, file.UploadedChunks, file.TotalChunks)
	return pauseResumed, nil
}

func (s *Session) cancel(ctx context.Context, file *model.FileRecord) model.Status {
	file.Status = model.StatusCancelled
	if err := s.store.Upsert(context.WithoutCancel(ctx), file); err != nil {
		return s.fail(ctx, file, storeUnavailable("mark cancelled", err))
	}
	s.setState(model.StatusCancelled, nil)
	log.Printf("upload session: %s cancelled at chunk %d/%d", file.Name, file.UploadedChunks, file.TotalChunks)
	s.notify(Event{Kind: EventStatus, FileID: file.ID, Progress: file.Progress(), Status: model.StatusCancelled, Label: "Cancelled"})
	return model.StatusCancelled
}

func (s *Session) complete(ctx context.Context, file *model.FileRecord) model.Status {
	// every chunk is stored, so a shutdown arriving now must not lose that
	file.Status = model.StatusCompleted
	if err := s.store.Upsert(context.WithoutCancel(ctx), file); err != nil {
		return s.fail(ctx, file, storeUnavailable("mark completed", err))
	}
	s.setState(model.StatusCompleted, nil)
	log.Printf("upload session: %s completed, %d chunks", file.Name, file.TotalChunks)
	s.notify(Event{Kind: EventStatus, FileID: file.ID, Progress: 1, Status: model.StatusCompleted, Label: "Completed"})
	return model.StatusCompleted
}

// suspend parks the record as Paused after ctx ended; no terminal event is sent.
func (s *Session) suspend(ctx context.Context, file *model.FileRecord) model.Status {
	file.Status = model.StatusPaused
	if err := s.store.Upsert(context.WithoutCancel(ctx), file); err != nil {
		log.Printf("upload session: %s suspend write failed: %v", file.Name, err)
	}
	s.setState(model.StatusPaused, ctx.Err())
	log.Printf("upload session: %s suspended at chunk %d/%d", file.Name, file.UploadedChunks, file.TotalChunks)
	return model.StatusPaused
}

func (s *Session) fail(ctx context.Context, file *model.FileRecord, err error) model.Status {
	s.setState(model.StatusFailed, err)
	ev := Event{Kind: EventStatus, Status: model.StatusFailed, Label: "Failed: " + err.Error(), Error: err.Error()}
	if file != nil {
		ev.FileID = file.ID
		ev.Progress = file.Progress()
		if file.ID != 0 {
			file.Status = model.StatusFailed
			file.ErrorMsg = err.Error()
			if werr := s.store.Upsert(context.WithoutCancel(ctx), file); werr != nil {
				log.Printf("upload session: %s failed and could not record it: %v", file.Name, werr)
			}
		}
	}
	log.Printf("upload session: %s failed: %v", s.file.Name, err)
	s.notify(ev)
	return model.StatusFailed
}

func (s *Session) notify(ev Event) {
	ev.Name = s.file.Name
	ev.Owner = s.file.Owner
	ev.At = time.Now()
	s.observer.Notify(ev)
}
