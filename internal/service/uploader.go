package service

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/transfer"
	"Go_Uploader/internal/worker"
	"Go_Uploader/model"
	"Go_Uploader/utils"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docker/go-units"
)

// SubmitRequest describes one upload. Size is taken from the file at Path
// when zero; ChunkSize falls back to the uploader default.
type SubmitRequest struct {
	Name      string
	Path      string
	Owner     string
	Size      int64
	ChunkSize int64
	Observer  session.Observer
}

// Handle follows a submitted upload.
type Handle struct {
	Name    string
	Control *session.Control

	entry *Entry
	sess  *session.Session
}

// Done is closed when the session ended and its slot was released.
func (h *Handle) Done() <-chan struct{} {
	return h.entry.Done()
}

// Wait blocks until the session ended or ctx is done.
func (h *Handle) Wait(ctx context.Context) (model.Status, error) {
	select {
	case <-h.entry.Done():
		return h.sess.State(), h.sess.Err()
	case <-ctx.Done():
		return h.sess.State(), ctx.Err()
	}
}

// State returns the current session state.
func (h *Handle) State() model.Status {
	return h.sess.State()
}

// Options wires the collaborators of an Uploader. Store, Transfer and Pool
// are required.
type Options struct {
	Store     repo.ProgressStore
	Transfer  transfer.Transferer
	Pool      *worker.Pool
	Registry  *Registry
	Flags     *repo.ControlFlags
	Snapshots *utils.CacheManager
	Observer  session.Observer

	ChunkSize    int64
	PollInterval time.Duration
}

// Uploader is the entry point for callers: it validates submissions, keeps
// one session per name, and routes control requests to it.
type Uploader struct {
	store     repo.ProgressStore
	transfer  transfer.Transferer
	pool      *worker.Pool
	registry  *Registry
	flags     *repo.ControlFlags
	snapshots *utils.CacheManager
	observer  session.Observer
	cleaner   *Cleaner

	chunkSize    int64
	pollInterval time.Duration
}

func NewUploader(opts Options) (*Uploader, error) {
	if opts.Store == nil {
		return nil, errors.New("uploader: store is required")
	}
	if opts.Transfer == nil {
		return nil, errors.New("uploader: transfer is required")
	}
	if opts.Pool == nil {
		return nil, errors.New("uploader: pool is required")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(nil, 0)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1 << 20
	}
	if opts.Observer == nil {
		opts.Observer = session.Discard
	}
	return &Uploader{
		store:        opts.Store,
		transfer:     opts.Transfer,
		pool:         opts.Pool,
		registry:     opts.Registry,
		flags:        opts.Flags,
		snapshots:    opts.Snapshots,
		observer:     opts.Observer,
		cleaner:      NewCleaner(opts.Store, opts.Transfer, opts.Snapshots),
		chunkSize:    opts.ChunkSize,
		pollInterval: opts.PollInterval,
	}, nil
}

func (u *Uploader) normalize(req *SubmitRequest) error {
	req.Name = utils.SanitizeFileName(req.Name)
	if req.Name == "" {
		return &session.Error{Kind: session.KindInvalidInput, Op: "submit", Err: errors.New("name is required")}
	}
	if req.Size < 0 {
		return &session.Error{Kind: session.KindInvalidInput, Op: "submit", Err: fmt.Errorf("size must not be negative, got %d", req.Size)}
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = u.chunkSize
	}
	if req.Path != "" {
		clean, err := utils.CleanLocalPath(req.Path)
		if err != nil {
			return &session.Error{Kind: session.KindInvalidInput, Op: "submit", Err: err}
		}
		info, err := os.Stat(clean)
		if err != nil {
			return &session.Error{Kind: session.KindInvalidInput, Op: "submit", Err: err}
		}
		if info.IsDir() {
			return &session.Error{Kind: session.KindInvalidInput, Op: "submit", Err: fmt.Errorf("%s is a directory", clean)}
		}
		if req.Size == 0 {
			req.Size = info.Size()
		} else if req.Size != info.Size() {
			return &session.Error{Kind: session.KindInvalidInput, Op: "submit",
				Err: fmt.Errorf("size %d does not match %s (%d)", req.Size, clean, info.Size())}
		}
		req.Path = clean
	}
	_, err := session.PlanChunks(req.Size, req.ChunkSize)
	return err
}

// SubmitUpload validates req and queues its session. It returns without
// waiting for the upload; a second submission for an active name fails with
// ErrAlreadyActive.
func (u *Uploader) SubmitUpload(ctx context.Context, req SubmitRequest) (*Handle, error) {
	if err := u.normalize(&req); err != nil {
		return nil, err
	}

	entry, err := u.registry.Acquire(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	var signals session.Signals = entry.Control
	if u.flags != nil {
		if err := u.flags.Reset(ctx, req.Name); err != nil {
			log.Printf("uploader: reset control flags of %s failed: %v", req.Name, err)
		}
		signals = session.AnySignals(entry.Control, remoteSignals{flags: u.flags, name: req.Name})
	}

	sess, err := session.New(session.Config{
		File: session.File{
			Name:  req.Name,
			Path:  req.Path,
			Size:  req.Size,
			Owner: req.Owner,
		},
		ChunkSize:    req.ChunkSize,
		Store:        u.store,
		Transfer:     u.transfer,
		Signals:      signals,
		Observer:     session.Observers{u.observer, req.Observer},
		PollInterval: u.pollInterval,
	})
	if err != nil {
		u.registry.Release(entry)
		return nil, err
	}
	entry.setSession(sess)

	err = u.pool.Submit(func(ctx context.Context) {
		defer u.registry.Release(entry)
		// a suspended session sends no terminal event, so streams are closed here
		if status := sess.Run(ctx); !status.Terminal() {
			if c, ok := req.Observer.(interface{ Close() }); ok {
				c.Close()
			}
		}
	})
	if err != nil {
		u.registry.Release(entry)
		return nil, err
	}
	log.Printf("uploader: %s queued, %s in chunks of %s", req.Name,
		units.BytesSize(float64(req.Size)), units.BytesSize(float64(req.ChunkSize)))

	return &Handle{Name: req.Name, Control: entry.Control, entry: entry, sess: sess}, nil
}

// RequestPause asks the session of name to pause before its next chunk.
func (u *Uploader) RequestPause(ctx context.Context, name string) error {
	name = utils.SanitizeFileName(name)
	return u.control(ctx, name, func(c *session.Control) { c.RequestPause() },
		func(ctx context.Context) error { return u.flags.SetPaused(ctx, name, true) })
}

// RequestResume lifts a pause.
func (u *Uploader) RequestResume(ctx context.Context, name string) error {
	name = utils.SanitizeFileName(name)
	return u.control(ctx, name, func(c *session.Control) { c.RequestResume() },
		func(ctx context.Context) error { return u.flags.SetPaused(ctx, name, false) })
}

// RequestCancel stops the session of name before its next chunk.
// Cancellation cannot be undone.
func (u *Uploader) RequestCancel(ctx context.Context, name string) error {
	name = utils.SanitizeFileName(name)
	return u.control(ctx, name, func(c *session.Control) { c.RequestCancel() },
		func(ctx context.Context) error { return u.flags.SetCancelled(ctx, name, true) })
}

func (u *Uploader) control(ctx context.Context, name string, local func(*session.Control), remote func(context.Context) error) error {
	if e, ok := u.registry.Get(name); ok {
		local(e.Control)
		return nil
	}
	if u.flags == nil {
		return ErrNotActive
	}
	held, err := u.registry.HeldRemotely(ctx, name)
	if err != nil {
		return err
	}
	if !held {
		return ErrNotActive
	}
	return remote(ctx)
}

// Cleanup removes the records of name. A session that is still active must
// have been cancelled; cleanup waits for it to stop before deleting.
func (u *Uploader) Cleanup(ctx context.Context, name string) error {
	name = utils.SanitizeFileName(name)
	if e, ok := u.registry.Get(name); ok {
		if !e.Control.Cancelled() {
			return fmt.Errorf("%w: cancel %s before cleanup", ErrAlreadyActive, name)
		}
		select {
		case <-e.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := u.waitRemote(ctx, name); err != nil {
		return err
	}
	return u.cleaner.Cleanup(ctx, name)
}

func (u *Uploader) waitRemote(ctx context.Context, name string) error {
	held, err := u.registry.HeldRemotely(ctx, name)
	if err != nil || !held {
		return err
	}
	cancelled, err := u.flags.Cancelled(ctx, name)
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("%w: cancel %s before cleanup", ErrAlreadyActive, name)
	}
	poll := u.pollInterval
	if poll <= 0 {
		poll = session.DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for held {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if held, err = u.registry.HeldRemotely(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// StatusView is the caller facing state of one file.
type StatusView struct {
	Name           string         `json:"name"`
	FileID         uint64         `json:"file_id,omitempty"`
	UploadID       string         `json:"upload_id,omitempty"`
	Status         model.Status   `json:"status"`
	Progress       float64        `json:"progress"`
	UploadedChunks int            `json:"uploaded_chunks"`
	TotalChunks    int            `json:"total_chunks"`
	Size           int64          `json:"size"`
	ChunkSize      int64          `json:"chunk_size"`
	Active         bool           `json:"active"`
	Error          string         `json:"error,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastEvent      *session.Event `json:"last_event,omitempty"`
}

func newStatusView(file *model.FileRecord) StatusView {
	return StatusView{
		Name:           file.Name,
		FileID:         file.ID,
		UploadID:       file.UploadID,
		Status:         file.Status,
		Progress:       file.Progress(),
		UploadedChunks: file.UploadedChunks,
		TotalChunks:    file.TotalChunks,
		Size:           file.Size,
		ChunkSize:      file.ChunkSize,
		Error:          file.ErrorMsg,
		UpdatedAt:      file.UpdatedAt,
	}
}

// Status returns the persisted state of name, enriched with the live session.
func (u *Uploader) Status(ctx context.Context, name string) (*StatusView, error) {
	name = utils.SanitizeFileName(name)
	entry, active := u.registry.Get(name)
	file, err := u.store.FindByName(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		if !active {
			return nil, repo.ErrNotFound
		}
		// queued, the record is created when a worker picks the session up
		return &StatusView{Name: name, Status: model.StatusPending, Active: true}, nil
	}
	if err != nil {
		return nil, err
	}
	view := newStatusView(file)
	view.Active = active
	if active {
		if s := entry.Session(); s != nil && s.State() != session.StatusIdle {
			view.Status = s.State()
		}
	}
	if u.snapshots != nil {
		if ev, ok := u.snapshots.GetUploadSnapshot(ctx, name); ok {
			view.LastEvent = ev
		}
	}
	return &view, nil
}

// List returns the most recently updated files.
func (u *Uploader) List(ctx context.Context, limit int) ([]StatusView, error) {
	files, err := u.store.ListFiles(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]StatusView, 0, len(files))
	for i := range files {
		view := newStatusView(&files[i])
		_, view.Active = u.registry.Get(files[i].Name)
		views = append(views, view)
	}
	return views, nil
}

// Active returns the number of sessions held by this process.
func (u *Uploader) Active() int {
	return u.registry.Len()
}

// Shutdown stops the pool. Running sessions suspend and leave their records
// Paused so a later submission resumes them.
func (u *Uploader) Shutdown(ctx context.Context) error {
	return u.pool.Stop(ctx)
}
