package handler

import (
	"Go_Uploader/internal/dto"
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/task"
	"Go_Uploader/model"
	"Go_Uploader/utils"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UploadService is the part of service.Uploader the handlers call.
type UploadService interface {
	SubmitUpload(ctx context.Context, req service.SubmitRequest) (*service.Handle, error)
	RequestPause(ctx context.Context, name string) error
	RequestResume(ctx context.Context, name string) error
	RequestCancel(ctx context.Context, name string) error
	Cleanup(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (*service.StatusView, error)
	List(ctx context.Context, limit int) ([]service.StatusView, error)
}

var (
	uploader  UploadService
	publisher mq.Publisher
)

// Init sets the services the handlers use. pub may be nil when queued
// submissions are disabled.
func Init(up UploadService, pub mq.Publisher) {
	uploader = up
	publisher = pub
}

// statusOf maps service errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case session.KindOf(err) == session.KindInvalidInput:
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotActive), errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func owner(c *gin.Context) string {
	value, _ := c.Get("username")
	name, _ := value.(string)
	return name
}

// SubmitUpload starts an upload directly or queues it for a worker.
func SubmitUpload(c *gin.Context) {
	var req dto.SubmitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Queue {
		if publisher == nil {
			utils.FailWithStatus(c, http.StatusServiceUnavailable, errors.New("upload queue disabled"))
			return
		}
		msg, err := task.EnqueueUpload(c.Request.Context(), publisher, task.UploadMessage{
			Name:      req.Name,
			Path:      req.Path,
			Owner:     owner(c),
			Size:      req.Size,
			ChunkSize: req.ChunkSize,
		})
		if err != nil {
			utils.FailWithStatus(c, statusOf(err), err)
			return
		}
		utils.Success(c, dto.SubmitUploadResponse{
			Name:      msg.Name,
			Queued:    true,
			RequestID: msg.RequestID,
			Status:    "Queued",
		})
		return
	}

	handle, err := uploader.SubmitUpload(c.Request.Context(), service.SubmitRequest{
		Name:      req.Name,
		Path:      req.Path,
		Owner:     owner(c),
		Size:      req.Size,
		ChunkSize: req.ChunkSize,
	})
	if err != nil {
		utils.FailWithStatus(c, statusOf(err), err)
		return
	}
	utils.Success(c, dto.SubmitUploadResponse{
		Name:   handle.Name,
		Status: string(model.StatusPending),
	})
}

func control(action string, fn func(ctx context.Context, name string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.UploadControlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		if err := fn(c.Request.Context(), req.Name); err != nil {
			utils.FailWithStatus(c, statusOf(err), err)
			return
		}
		utils.Success(c, dto.UploadControlResponse{Name: req.Name, Action: action})
	}
}

// PauseUpload asks a running upload to pause.
func PauseUpload(c *gin.Context) {
	control("pause", uploader.RequestPause)(c)
}

// ResumeUpload lifts a pause.
func ResumeUpload(c *gin.Context) {
	control("resume", uploader.RequestResume)(c)
}

// CancelUpload cancels an upload.
func CancelUpload(c *gin.Context) {
	control("cancel", uploader.RequestCancel)(c)
}

// CleanupUpload deletes the records of a cancelled or finished upload.
func CleanupUpload(c *gin.Context) {
	control("cleanup", uploader.Cleanup)(c)
}

// UploadStatus returns the state of one upload.
func UploadStatus(c *gin.Context) {
	view, err := uploader.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		utils.FailWithStatus(c, statusOf(err), err)
		return
	}
	utils.Success(c, view)
}

// ListUploads returns the most recent uploads.
func ListUploads(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repo.DefaultListLimit)))
	if limit > repo.MaxListLimit {
		limit = repo.MaxListLimit
	}
	views, err := uploader.List(c.Request.Context(), limit)
	if err != nil {
		utils.FailWithStatus(c, statusOf(err), err)
		return
	}
	utils.Success(c, views)
}
