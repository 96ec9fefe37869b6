package model

import "time"

// Status is the lifecycle state of an uploaded file.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusUploading Status = "Uploading"
	StatusPaused    Status = "Paused"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusFailed    Status = "Failed"
)

// Terminal reports whether no further transitions follow for a session.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

type FileRecord struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UploadID string `gorm:"column:upload_id;size:36;uniqueIndex;not null" json:"upload_id"`

	Name  string `gorm:"column:name;size:255;uniqueIndex;not null" json:"name"`
	Owner string `gorm:"column:owner;size:255;not null;default:''" json:"owner,omitempty"`
	Path  string `gorm:"column:path;size:1024;not null;default:''" json:"path,omitempty"`

	Size      int64 `gorm:"column:size;not null" json:"size"`
	ChunkSize int64 `gorm:"column:chunk_size;not null" json:"chunk_size"`

	TotalChunks    int `gorm:"column:total_chunks;not null" json:"total_chunks"`
	UploadedChunks int `gorm:"column:uploaded_chunks;not null;default:0" json:"uploaded_chunks"`

	Status   Status `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	ErrorMsg string `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (FileRecord) TableName() string {
	return "file_record"
}

// Progress returns the uploaded fraction in [0,1]. Empty files count as done.
func (f *FileRecord) Progress() float64 {
	if f.TotalChunks <= 0 {
		if f.Status == StatusCompleted {
			return 1
		}
		return 0
	}
	return float64(f.UploadedChunks) / float64(f.TotalChunks)
}
