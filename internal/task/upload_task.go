package task

import (
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/session"
	"Go_Uploader/utils"
	"context"
	"encoding/json"
	"errors"
	"time"
)

// UploadMessage is the payload sent to the upload worker.
type UploadMessage struct {
	RequestID string    `json:"request_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Owner     string    `json:"owner,omitempty"`
	Size      int64     `json:"size,omitempty"`
	ChunkSize int64     `json:"chunk_size,omitempty"`
	Attempt   int       `json:"attempt"`
	QueuedAt  time.Time `json:"queued_at"`
}

// SubmitRequest converts the message into an uploader submission.
func (m UploadMessage) SubmitRequest() service.SubmitRequest {
	return service.SubmitRequest{
		Name:      m.Name,
		Path:      m.Path,
		Owner:     m.Owner,
		Size:      m.Size,
		ChunkSize: m.ChunkSize,
	}
}

// EnqueueUpload publishes an upload for a worker process and returns the
// message that was sent.
func EnqueueUpload(ctx context.Context, pub mq.Publisher, msg UploadMessage) (*UploadMessage, error) {
	msg.Name = utils.SanitizeFileName(msg.Name)
	if msg.Name == "" {
		return nil, &session.Error{Kind: session.KindInvalidInput, Op: "enqueue", Err: errors.New("name is required")}
	}
	if msg.Size < 0 || msg.ChunkSize < 0 {
		return nil, &session.Error{Kind: session.KindInvalidInput, Op: "enqueue",
			Err: errors.New("size and chunk size must not be negative")}
	}
	if msg.RequestID == "" {
		msg.RequestID = utils.NewRequestID()
	}
	msg.Attempt = 0
	msg.QueuedAt = time.Now()
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := pub.PublishTask(ctx, body); err != nil {
		return nil, err
	}
	return &msg, nil
}
