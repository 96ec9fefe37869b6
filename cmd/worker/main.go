package main

import (
	"Go_Uploader/config"
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/storage"
	"Go_Uploader/internal/task"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	config.InitConfig()
	repo.InitDatabase()
	if config.AppConfig.RedisEnabled {
		repo.InitRedis()
	}
	storage.InitFromConfig()

	uploader, err := service.NewDefaultUploader()
	if err != nil {
		log.Fatalf("init uploader fail: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// in-flight deliveries only finish once their sessions suspend
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := uploader.Shutdown(shutdownCtx); err != nil {
			log.Printf("uploader shutdown: %v", err)
		}
	}()

	log.Println("upload worker started")
	if err := task.RunUploadWorker(ctx, uploader); err != nil {
		log.Fatalf("upload worker stopped: %v", err)
	}
	mq.ClosePublisher()
}
