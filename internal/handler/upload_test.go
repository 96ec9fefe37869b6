package handler

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/transfer"
	"Go_Uploader/internal/worker"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type taskPublisher struct {
	tasks [][]byte
	err   error
}

func (p *taskPublisher) PublishTask(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, body)
	return nil
}

func (p *taskPublisher) PublishRetry(context.Context, []byte, time.Duration) error { return nil }

func (p *taskPublisher) PublishDLQ(context.Context, []byte) error { return nil }

func (p *taskPublisher) PublishEvent(context.Context, string, []byte) error { return nil }

func newTestRouter(t *testing.T, tr transfer.Transferer, pub *taskPublisher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	up, err := service.NewUploader(service.Options{
		Store:        repo.NewGormProgressStore(db),
		Transfer:     tr,
		Pool:         worker.NewPool(2),
		ChunkSize:    1024,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = up.Shutdown(ctx)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if pub == nil {
		Init(up, nil)
	} else {
		Init(up, pub)
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("username", "alice")
		c.Next()
	})
	g := r.Group("/upload")
	g.POST("/submit", SubmitUpload)
	g.POST("/pause", PauseUpload)
	g.POST("/resume", ResumeUpload)
	g.POST("/cancel", CancelUpload)
	g.POST("/cleanup", CleanupUpload)
	g.GET("/status/:name", UploadStatus)
	g.GET("/list", ListUploads)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func TestSubmitAndStatus(t *testing.T) {
	r := newTestRouter(t, transfer.Delay(0), nil)

	code, env := do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "a.bin", "size": 3000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
	var submitted struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	assert.Equal(t, "a.bin", submitted.Name)
	assert.Equal(t, "Pending", submitted.Status)

	require.Eventually(t, func() bool {
		code, env := do(t, r, http.MethodGet, "/upload/status/a.bin", nil)
		if code != http.StatusOK {
			return false
		}
		var view service.StatusView
		return json.Unmarshal(env.Data, &view) == nil && view.Status == "Completed"
	}, 5*time.Second, 10*time.Millisecond)

	code, env = do(t, r, http.MethodGet, "/upload/list?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var views []service.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, 3, views[0].TotalChunks)

	code, env = do(t, r, http.MethodGet, "/upload/list?limit=99999999", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &views))
	assert.Len(t, views, 1)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	r := newTestRouter(t, transfer.Delay(0), nil)

	code, _ := do(t, r, http.MethodPost, "/upload/submit", gin.H{"size": 10})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "x", "path": "/no/such/file"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, -1, env.Code)
}

func TestDuplicateSubmitConflicts(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	tr := transfer.Func(func(ctx context.Context, _ session.File, _ int, _ int64) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	r := newTestRouter(t, tr, nil)

	code, _ := do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "d.bin", "size": 2048})
	require.Equal(t, http.StatusOK, code)
	<-started

	code, _ = do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "d.bin", "size": 2048})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, r, http.MethodPost, "/upload/cleanup", gin.H{"name": "d.bin"})
	assert.Equal(t, http.StatusConflict, code)

	code, env := do(t, r, http.MethodPost, "/upload/cancel", gin.H{"name": "d.bin"})
	require.Equal(t, http.StatusOK, code)
	var resp struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "cancel", resp.Action)
	close(release)

	code, _ = do(t, r, http.MethodPost, "/upload/cleanup", gin.H{"name": "d.bin"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodGet, "/upload/status/d.bin", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestControlOfUnknownUpload(t *testing.T) {
	r := newTestRouter(t, transfer.Delay(0), nil)

	for _, path := range []string{"/upload/pause", "/upload/resume", "/upload/cancel"} {
		code, _ := do(t, r, http.MethodPost, path, gin.H{"name": "ghost"})
		assert.Equal(t, http.StatusNotFound, code, path)
	}
	code, _ := do(t, r, http.MethodPost, "/upload/pause", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestQueuedSubmit(t *testing.T) {
	r := newTestRouter(t, transfer.Delay(0), nil)
	code, _ := do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "q.bin", "size": 5, "queue": true})
	assert.Equal(t, http.StatusServiceUnavailable, code)

	pub := &taskPublisher{}
	r = newTestRouter(t, transfer.Delay(0), pub)
	code, env := do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "q.bin", "size": 5, "queue": true})
	require.Equal(t, http.StatusOK, code)

	var resp struct {
		Name      string `json:"name"`
		Queued    bool   `json:"queued"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.Queued)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, pub.tasks, 1)

	var msg struct {
		Name  string `json:"name"`
		Owner string `json:"owner"`
		Size  int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(pub.tasks[0], &msg))
	assert.Equal(t, "q.bin", msg.Name)
	assert.Equal(t, "alice", msg.Owner)
	assert.Equal(t, int64(5), msg.Size)

	pub.err = errors.New("broker down")
	code, _ = do(t, r, http.MethodPost, "/upload/submit", gin.H{"name": "q.bin", "size": 5, "queue": true})
	assert.Equal(t, http.StatusInternalServerError, code)
}
