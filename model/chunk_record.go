package model

import "time"

type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "Pending"
	ChunkCompleted ChunkStatus = "Completed"
)

type ChunkRecord struct {
	ID uint64 `gorm:"primaryKey" json:"-"`

	FileID uint64 `gorm:"column:file_id;not null;uniqueIndex:idx_file_chunk,priority:1" json:"file_id"`

	ChunkNumber int `gorm:"column:chunk_number;not null;uniqueIndex:idx_file_chunk,priority:2" json:"chunk_number"`

	Status   ChunkStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Progress float64     `gorm:"column:progress;not null;default:0" json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (ChunkRecord) TableName() string {
	return "chunk_record"
}

// NewPendingChunk builds the initial record of one chunk.
func NewPendingChunk(fileID uint64, chunkNumber int) ChunkRecord {
	return ChunkRecord{
		FileID:      fileID,
		ChunkNumber: chunkNumber,
		Status:      ChunkPending,
		Progress:    0,
	}
}
