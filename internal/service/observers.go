package service

import (
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/session"
	"Go_Uploader/model"
	"Go_Uploader/utils"
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"
)

const observerTimeout = 5 * time.Second

// dlqMessage is published for every failed session.
type dlqMessage struct {
	Name     string    `json:"name"`
	FileID   uint64    `json:"file_id,omitempty"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// EventPublisher forwards session events to the events exchange. Failed
// sessions also go to the dead letter queue.
type EventPublisher struct {
	publisher mq.Publisher
}

// NewEventPublisher builds an observer on pub.
func NewEventPublisher(pub mq.Publisher) *EventPublisher {
	return &EventPublisher{publisher: pub}
}

func (p *EventPublisher) Notify(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()

	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("event publisher: encode %s failed: %v", ev.Name, err)
		return
	}
	key := "upload.event." + string(ev.Kind)
	if ev.Kind == session.EventStatus {
		key += "." + strings.ToLower(string(ev.Status))
	}
	if err := p.publisher.PublishEvent(ctx, key, body); err != nil {
		log.Printf("event publisher: publish %s failed: %v", ev.Name, err)
	}

	if ev.Kind != session.EventStatus || ev.Status != model.StatusFailed {
		return
	}
	dlq, err := json.Marshal(dlqMessage{
		Name:     ev.Name,
		FileID:   ev.FileID,
		Error:    ev.Error,
		FailedAt: ev.At,
	})
	if err != nil {
		return
	}
	if err := p.publisher.PublishDLQ(ctx, dlq); err != nil {
		log.Printf("event publisher: dlq publish %s failed: %v", ev.Name, err)
	}
}

// SnapshotObserver keeps the last event of each file in the cache so pollers
// do not hit the database.
type SnapshotObserver struct {
	cache *utils.CacheManager
	ttl   time.Duration
}

// NewSnapshotObserver builds an observer writing to cache.
func NewSnapshotObserver(cache *utils.CacheManager, ttl time.Duration) *SnapshotObserver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotObserver{cache: cache, ttl: ttl}
}

func (o *SnapshotObserver) Notify(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()
	if err := o.cache.SetUploadSnapshot(ctx, ev, o.ttl); err != nil {
		log.Printf("snapshot observer: cache %s failed: %v", ev.Name, err)
	}
}

// MailObserver mails a report when a session ends. Sending happens off the
// worker goroutine.
type MailObserver struct {
	to   string
	send func(to string, report utils.UploadReport) error
}

// NewMailObserver builds an observer that mails to; owners that look like an
// address receive their own reports when to is empty.
func NewMailObserver(to string) *MailObserver {
	return &MailObserver{to: to, send: utils.SendUploadReport}
}

func (o *MailObserver) Notify(ev session.Event) {
	if !ev.Terminal() {
		return
	}
	to := o.to
	if to == "" && strings.Contains(ev.Owner, "@") {
		to = ev.Owner
	}
	if to == "" {
		return
	}
	report := utils.UploadReport{
		Name:     ev.Name,
		Status:   string(ev.Status),
		Label:    ev.Label,
		Progress: ev.Progress,
	}
	go func() {
		if err := o.send(to, report); err != nil {
			log.Printf("mail observer: report %s failed: %v", report.Name, err)
		}
	}()
}

// remoteSignals reads pause/cancel flags that other processes raised in Redis.
type remoteSignals struct {
	flags *repo.ControlFlags
	name  string
}

func (r remoteSignals) Paused() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	paused, err := r.flags.Paused(ctx, r.name)
	if err != nil {
		log.Printf("upload control: read pause flag of %s failed: %v", r.name, err)
		return false
	}
	return paused
}

func (r remoteSignals) Cancelled() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cancelled, err := r.flags.Cancelled(ctx, r.name)
	if err != nil {
		log.Printf("upload control: read cancel flag of %s failed: %v", r.name, err)
		return false
	}
	return cancelled
}
