package session

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/model"
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory repo.ProgressStore.
type memStore struct {
	mu     sync.Mutex
	nextID uint64
	files  map[string]*model.FileRecord
	chunks map[uint64]map[int]*model.ChunkRecord

	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{
		files:  make(map[string]*model.FileRecord),
		chunks: make(map[uint64]map[int]*model.ChunkRecord),
	}
}

func (s *memStore) FindByName(_ context.Context, name string) (*model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) Upsert(_ context.Context, file *model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if file.ID == 0 {
		s.nextID++
		file.ID = s.nextID
	}
	cp := *file
	s.files[file.Name] = &cp
	return nil
}

func (s *memStore) ListFiles(_ context.Context, limit int) ([]model.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FileRecord, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, *f)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) FindChunks(_ context.Context, fileID uint64) ([]model.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChunkRecord, 0, len(s.chunks[fileID]))
	for _, c := range s.chunks[fileID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkNumber < out[j].ChunkNumber })
	return out, nil
}

func (s *memStore) FindChunk(_ context.Context, fileID uint64, n int) (*model.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[fileID][n]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) CreateChunks(_ context.Context, chunks []model.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		c := chunks[i]
		if s.chunks[c.FileID] == nil {
			s.chunks[c.FileID] = make(map[int]*model.ChunkRecord)
		}
		if _, ok := s.chunks[c.FileID][c.ChunkNumber]; ok {
			continue
		}
		s.nextID++
		c.ID = s.nextID
		s.chunks[c.FileID][c.ChunkNumber] = &c
	}
	return nil
}

func (s *memStore) UpsertChunk(_ context.Context, chunk *model.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[chunk.FileID] == nil {
		s.chunks[chunk.FileID] = make(map[int]*model.ChunkRecord)
	}
	cp := *chunk
	s.chunks[chunk.FileID][chunk.ChunkNumber] = &cp
	return nil
}

func (s *memStore) DeleteAllChunks(_ context.Context, fileID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, fileID)
	return nil
}

func (s *memStore) DeleteFile(_ context.Context, fileID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, f := range s.files {
		if f.ID == fileID {
			delete(s.files, name)
		}
	}
	return nil
}

func (s *memStore) file(name string) model.FileRecord {
	f, err := s.FindByName(context.Background(), name)
	if err != nil {
		return model.FileRecord{}
	}
	return *f
}

func (s *memStore) completedChunks(fileID uint64) int {
	chunks, _ := s.FindChunks(context.Background(), fileID)
	n := 0
	for _, c := range chunks {
		if c.Status == model.ChunkCompleted {
			n++
		}
	}
	return n
}

// missingChunkStore hides one chunk record from FindChunk.
type missingChunkStore struct {
	*memStore
	missing int
}

func (s missingChunkStore) FindChunk(ctx context.Context, fileID uint64, n int) (*model.ChunkRecord, error) {
	if n == s.missing {
		return nil, repo.ErrNotFound
	}
	return s.memStore.FindChunk(ctx, fileID, n)
}

// ctxStore fails file writes once ctx is done, the way a database driver does.
type ctxStore struct {
	*memStore
	onUpsert func(file *model.FileRecord)
}

func (s ctxStore) Upsert(ctx context.Context, file *model.FileRecord) error {
	if s.onUpsert != nil {
		s.onUpsert(file)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memStore.Upsert(ctx, file)
}
