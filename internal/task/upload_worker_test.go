package task

import (
	"Go_Uploader/config"
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/transfer"
	"Go_Uploader/internal/worker"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcker struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAcker) Ack(bool) error {
	a.acked++
	return nil
}

func (a *fakeAcker) Nack(_ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

type retry struct {
	body  []byte
	delay time.Duration
}

type fakePublisher struct {
	tasks   [][]byte
	retries []retry
	dlq     [][]byte
	err     error
}

func (p *fakePublisher) PublishTask(_ context.Context, body []byte) error {
	p.tasks = append(p.tasks, body)
	return p.err
}

func (p *fakePublisher) PublishRetry(_ context.Context, body []byte, delay time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.retries = append(p.retries, retry{body: body, delay: delay})
	return nil
}

func (p *fakePublisher) PublishDLQ(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.dlq = append(p.dlq, body)
	return nil
}

func (p *fakePublisher) PublishEvent(context.Context, string, []byte) error { return p.err }

type failingSubmitter struct {
	err error
}

func (s failingSubmitter) SubmitUpload(context.Context, service.SubmitRequest) (*service.Handle, error) {
	return nil, s.err
}

func withRetryConfig(t *testing.T, maxRetry int, delays ...time.Duration) {
	t.Helper()
	saved := config.AppConfig
	config.AppConfig.UploadRetryMax = maxRetry
	config.AppConfig.UploadRetryDelays = delays
	t.Cleanup(func() { config.AppConfig = saved })
}

func newUploader(t *testing.T, tr transfer.Transferer) *service.Uploader {
	t.Helper()
	db, err := repo.OpenSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	pool := worker.NewPool(1)
	up, err := service.NewUploader(service.Options{
		Store:     repo.NewGormProgressStore(db),
		Transfer:  tr,
		Pool:      pool,
		ChunkSize: 1024,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = up.Shutdown(ctx)
	})
	return up
}

func body(t *testing.T, msg UploadMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestHandleUploadMessageAcksCompletedUpload(t *testing.T) {
	up := newUploader(t, transfer.Delay(0))
	pub := &fakePublisher{}
	d := &fakeAcker{}

	handleUploadMessage(context.Background(), pub, up, body(t, UploadMessage{Name: "a.bin", Size: 3000}), d)

	assert.Equal(t, 1, d.acked)
	assert.Equal(t, 0, d.nacked)
	view, err := up.Status(context.Background(), "a.bin")
	require.NoError(t, err)
	assert.Equal(t, "Completed", string(view.Status))
}

func TestHandleUploadMessageAcksFailedUpload(t *testing.T) {
	up := newUploader(t, transfer.Func(func(context.Context, session.File, int, int64) error {
		return errors.New("remote rejected chunk")
	}))
	d := &fakeAcker{}

	handleUploadMessage(context.Background(), &fakePublisher{}, up, body(t, UploadMessage{Name: "f.bin", Size: 10}), d)

	assert.Equal(t, 1, d.acked)
	view, err := up.Status(context.Background(), "f.bin")
	require.NoError(t, err)
	assert.Equal(t, "Failed", string(view.Status))
}

func TestHandleUploadMessageRequeuesSuspendedUpload(t *testing.T) {
	started := make(chan struct{})
	up := newUploader(t, transfer.Func(func(ctx context.Context, _ session.File, _ int, _ int64) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	d := &fakeAcker{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleUploadMessage(context.Background(), &fakePublisher{}, up, body(t, UploadMessage{Name: "s.bin", Size: 10}), d)
	}()
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, up.Shutdown(ctx))
	<-done

	assert.Equal(t, 0, d.acked)
	assert.Equal(t, 1, d.nacked)
	assert.True(t, d.requeue)
}

func TestHandleUploadMessageDropsGarbage(t *testing.T) {
	d := &fakeAcker{}
	handleUploadMessage(context.Background(), &fakePublisher{}, failingSubmitter{}, []byte("{not json"), d)
	assert.Equal(t, 1, d.acked)
}

func TestHandleUploadMessageSendsInvalidInputToDLQ(t *testing.T) {
	pub := &fakePublisher{}
	d := &fakeAcker{}
	sub := failingSubmitter{err: &session.Error{Kind: session.KindInvalidInput, Op: "submit", Err: errors.New("bad size")}}

	handleUploadMessage(context.Background(), pub, sub, body(t, UploadMessage{RequestID: "r1", Name: "x"}), d)

	assert.Equal(t, 1, d.acked)
	assert.Empty(t, pub.retries)
	require.Len(t, pub.dlq, 1)
	var msg dlqMessage
	require.NoError(t, json.Unmarshal(pub.dlq[0], &msg))
	assert.Equal(t, "r1", msg.RequestID)
	assert.Contains(t, msg.Error, "bad size")
}

func TestHandleUploadMessageRequeuesWhenPoolClosed(t *testing.T) {
	d := &fakeAcker{}
	handleUploadMessage(context.Background(), &fakePublisher{}, failingSubmitter{err: worker.ErrPoolClosed},
		body(t, UploadMessage{Name: "x"}), d)
	assert.Equal(t, 1, d.nacked)
	assert.True(t, d.requeue)
}

func TestHandleUploadMessageRetriesThenDeadLetters(t *testing.T) {
	withRetryConfig(t, 2, time.Second, time.Minute)
	pub := &fakePublisher{}
	sub := failingSubmitter{err: fmt.Errorf("acquire upload lock: %w", errors.New("redis down"))}

	d := &fakeAcker{}
	handleUploadMessage(context.Background(), pub, sub, body(t, UploadMessage{Name: "x"}), d)
	require.Len(t, pub.retries, 1)
	assert.Equal(t, time.Second, pub.retries[0].delay)
	assert.Equal(t, 1, d.acked)

	var next UploadMessage
	require.NoError(t, json.Unmarshal(pub.retries[0].body, &next))
	assert.Equal(t, 1, next.Attempt)

	handleUploadMessage(context.Background(), pub, sub, pub.retries[0].body, &fakeAcker{})
	require.Len(t, pub.retries, 2)
	assert.Equal(t, time.Minute, pub.retries[1].delay)

	handleUploadMessage(context.Background(), pub, sub, pub.retries[1].body, &fakeAcker{})
	assert.Len(t, pub.retries, 2)
	assert.Len(t, pub.dlq, 1)
}

func TestHandleUploadMessageNacksWhenRetryPublishFails(t *testing.T) {
	withRetryConfig(t, 3, time.Second)
	pub := &fakePublisher{err: errors.New("broker down")}
	d := &fakeAcker{}

	handleUploadMessage(context.Background(), pub, failingSubmitter{err: errors.New("boom")}, body(t, UploadMessage{Name: "x"}), d)

	assert.Equal(t, 0, d.acked)
	assert.Equal(t, 1, d.nacked)
	assert.True(t, d.requeue)
}

func TestPickRetryDelay(t *testing.T) {
	delays := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	assert.Equal(t, time.Duration(0), pickRetryDelay(1, nil))
	assert.Equal(t, time.Second, pickRetryDelay(0, delays))
	assert.Equal(t, time.Second, pickRetryDelay(1, delays))
	assert.Equal(t, 3*time.Second, pickRetryDelay(3, delays))
	assert.Equal(t, 3*time.Second, pickRetryDelay(9, delays))
}

func TestEnqueueUpload(t *testing.T) {
	pub := &fakePublisher{}
	msg, err := EnqueueUpload(context.Background(), pub, UploadMessage{Name: "  a.bin\n", Size: 10, Attempt: 4})
	require.NoError(t, err)
	assert.Equal(t, "a.bin", msg.Name)
	assert.NotEmpty(t, msg.RequestID)
	assert.Equal(t, 0, msg.Attempt)
	assert.False(t, msg.QueuedAt.IsZero())
	require.Len(t, pub.tasks, 1)

	_, err = EnqueueUpload(context.Background(), pub, UploadMessage{Name: " "})
	assert.ErrorIs(t, err, session.ErrInvalidInput)
	_, err = EnqueueUpload(context.Background(), pub, UploadMessage{Name: "a", Size: -1})
	assert.ErrorIs(t, err, session.ErrInvalidInput)
	assert.Len(t, pub.tasks, 1)
}
