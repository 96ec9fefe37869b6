package service

import (
	"Go_Uploader/config"
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/storage"
	"Go_Uploader/internal/transfer"
	"Go_Uploader/internal/worker"
	"Go_Uploader/utils"
	"log"
)

// NewDefaultUploader wires an Uploader from config and the initialized
// globals (repo.Db, repo.Redis, storage.Default).
func NewDefaultUploader() (*Uploader, error) {
	cfg := config.AppConfig

	t, err := transfer.FromConfig(config.TransferConfigInstance, storage.Default, storage.DefaultBucket)
	if err != nil {
		return nil, err
	}

	observers := session.Observers{}
	opts := Options{
		Store:        repo.NewGormProgressStore(repo.Db),
		Transfer:     t,
		Pool:         worker.NewPool(cfg.UploadPoolSize),
		ChunkSize:    cfg.UploadChunkSize,
		PollInterval: cfg.UploadPollInterval,
	}

	if cfg.RedisEnabled && repo.Redis != nil {
		opts.Registry = NewRegistry(repo.Redis, cfg.UploadLockTTL)
		opts.Flags = repo.NewControlFlags(repo.Redis, 0)
		opts.Snapshots = utils.GetCacheManager()
		observers = append(observers, NewSnapshotObserver(opts.Snapshots, cfg.UploadSnapshotTTL))
	} else {
		opts.Registry = NewRegistry(nil, 0)
	}

	if cfg.RabbitMQEnable {
		if _, err := mq.GetPublisher(); err != nil {
			log.Printf("uploader: rabbitmq unavailable, events are not published: %v", err)
		} else {
			observers = append(observers, NewEventPublisher(mq.Shared{}))
		}
	}

	if cfg.SMTPConfigured() {
		observers = append(observers, NewMailObserver(cfg.UploadReportTo))
	}

	opts.Observer = observers
	return NewUploader(opts)
}
