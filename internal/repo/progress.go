package repo

import (
	"Go_Uploader/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("record not found")

const chunkBatchSize = 500

// List page bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ProgressStore persists file and chunk progress. Writes are atomic per record.
type ProgressStore interface {
	FindByName(ctx context.Context, name string) (*model.FileRecord, error)
	Upsert(ctx context.Context, file *model.FileRecord) error
	ListFiles(ctx context.Context, limit int) ([]model.FileRecord, error)

	FindChunks(ctx context.Context, fileID uint64) ([]model.ChunkRecord, error)
	FindChunk(ctx context.Context, fileID uint64, chunkNumber int) (*model.ChunkRecord, error)
	CreateChunks(ctx context.Context, chunks []model.ChunkRecord) error
	UpsertChunk(ctx context.Context, chunk *model.ChunkRecord) error

	DeleteAllChunks(ctx context.Context, fileID uint64) error
	DeleteFile(ctx context.Context, fileID uint64) error
}

// GormProgressStore implements ProgressStore on gorm.
type GormProgressStore struct {
	db *gorm.DB
}

// NewGormProgressStore builds a store on an open connection.
func NewGormProgressStore(db *gorm.DB) *GormProgressStore {
	return &GormProgressStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// FindByName loads the file record tracked under name.
func (s *GormProgressStore) FindByName(ctx context.Context, name string) (*model.FileRecord, error) {
	var file model.FileRecord
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&file).Error; err != nil {
		return nil, notFound(err)
	}
	return &file, nil
}

// Upsert inserts a new record (assigning its ID) or updates an existing one.
func (s *GormProgressStore) Upsert(ctx context.Context, file *model.FileRecord) error {
	if file.ID == 0 {
		return s.db.WithContext(ctx).Create(file).Error
	}
	return s.db.WithContext(ctx).Save(file).Error
}

// ListFiles returns the most recently updated records first, at most
// MaxListLimit of them.
func (s *GormProgressStore) ListFiles(ctx context.Context, limit int) ([]model.FileRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	var files []model.FileRecord
	err := s.db.WithContext(ctx).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

// FindChunks loads every chunk of a file in ascending order.
func (s *GormProgressStore) FindChunks(ctx context.Context, fileID uint64) ([]model.ChunkRecord, error) {
	chunks := make([]model.ChunkRecord, 0)
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("chunk_number asc").
		Find(&chunks).Error
	return chunks, err
}

// FindChunk loads one chunk.
func (s *GormProgressStore) FindChunk(ctx context.Context, fileID uint64, chunkNumber int) (*model.ChunkRecord, error) {
	var chunk model.ChunkRecord
	if err := s.db.WithContext(ctx).
		Where("file_id = ? AND chunk_number = ?", fileID, chunkNumber).
		First(&chunk).Error; err != nil {
		return nil, notFound(err)
	}
	return &chunk, nil
}

// CreateChunks inserts the initial chunk set. Rows that already exist are kept.
func (s *GormProgressStore) CreateChunks(ctx context.Context, chunks []model.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "file_id"},
				{Name: "chunk_number"},
			},
			DoNothing: true,
		}).
		CreateInBatches(&chunks, chunkBatchSize).Error
}

// UpsertChunk writes a chunk keyed by (file id, chunk number).
func (s *GormProgressStore) UpsertChunk(ctx context.Context, chunk *model.ChunkRecord) error {
	if chunk.ID != 0 {
		return s.db.WithContext(ctx).Save(chunk).Error
	}
	// the same chunk can be written again after a restart, so the write is idempotent
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "file_id"},
				{Name: "chunk_number"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"status",
				"progress",
				"updated_at",
			}),
		}).
		Create(chunk).Error
}

// DeleteAllChunks removes every chunk of a file. Missing rows are not an error.
func (s *GormProgressStore) DeleteAllChunks(ctx context.Context, fileID uint64) error {
	return s.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&model.ChunkRecord{}).Error
}

// DeleteFile removes the file record. Missing rows are not an error.
func (s *GormProgressStore) DeleteFile(ctx context.Context, fileID uint64) error {
	return s.db.WithContext(ctx).Where("id = ?", fileID).Delete(&model.FileRecord{}).Error
}
