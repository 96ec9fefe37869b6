package task

import (
	"Go_Uploader/config"
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/worker"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Submitter starts uploads; *service.Uploader implements it.
type Submitter interface {
	SubmitUpload(ctx context.Context, req service.SubmitRequest) (*service.Handle, error)
}

type dlqMessage struct {
	RequestID string    `json:"request_id"`
	Name      string    `json:"name"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// acker is the part of amqp.Delivery the handler needs.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// RunUploadWorker consumes upload messages from RabbitMQ and hands them to up.
// A delivery is acked once its session reached a terminal status; suspended
// sessions are requeued so another worker resumes them. After ctx ends it
// waits for in-flight deliveries, so the uploader must be shut down alongside.
func RunUploadWorker(ctx context.Context, up Submitter) error {
	client, err := mq.Dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	prefetch := config.AppConfig.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := client.Channel.Consume(
		mq.QueueTasks,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("upload worker: delivery channel closed")
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				handleUploadMessage(ctx, client, up, d.Body, &d)
			}(delivery)
		}
	}
}

func handleUploadMessage(ctx context.Context, pub mq.Publisher, up Submitter, body []byte, d acker) {
	var msg UploadMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("upload worker: invalid message: %v", err)
		_ = d.Ack(false)
		return
	}

	handle, err := up.SubmitUpload(ctx, msg.SubmitRequest())
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrPoolClosed) || ctx.Err() != nil:
		_ = d.Nack(false, true)
		return
	case session.KindOf(err) == session.KindInvalidInput:
		if err := publishDLQ(ctx, pub, msg, err); err != nil {
			log.Printf("upload worker: dlq publish failed: %v", err)
		}
		_ = d.Ack(false)
		return
	default:
		if err := scheduleRetry(ctx, pub, msg, err); err != nil {
			log.Printf("upload worker: retry schedule failed: %v", err)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	<-handle.Done()
	if status := handle.State(); !status.Terminal() {
		log.Printf("upload worker: %s suspended as %s, requeued", msg.Name, status)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func scheduleRetry(ctx context.Context, pub mq.Publisher, msg UploadMessage, procErr error) error {
	maxRetry := config.AppConfig.UploadRetryMax
	if maxRetry < 0 {
		maxRetry = 0
	}
	nextAttempt := msg.Attempt + 1
	if maxRetry == 0 || nextAttempt > maxRetry {
		return publishDLQ(ctx, pub, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, config.AppConfig.UploadRetryDelays)
	log.Printf("upload worker: %s retry %d in %s: %v", msg.Name, nextAttempt, delay, procErr)

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return pub.PublishRetry(ctx, body, delay)
}

func publishDLQ(ctx context.Context, pub mq.Publisher, msg UploadMessage, procErr error) error {
	body, err := json.Marshal(dlqMessage{
		RequestID: msg.RequestID,
		Name:      msg.Name,
		Attempt:   msg.Attempt,
		Error:     procErr.Error(),
		FailedAt:  time.Now(),
	})
	if err != nil {
		return err
	}
	return pub.PublishDLQ(ctx, body)
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
