package dto

// SubmitUploadRequest starts an upload of a local file.
type SubmitUploadRequest struct {
	Name      string `json:"name" binding:"required"`
	Path      string `json:"path"`
	Size      int64  `json:"size" binding:"gte=0"`
	ChunkSize int64  `json:"chunk_size" binding:"gte=0"`
	Queue     bool   `json:"queue"`
}

// UploadControlRequest addresses an upload by name.
type UploadControlRequest struct {
	Name string `json:"name" binding:"required"`
}
