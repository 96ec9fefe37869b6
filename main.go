package main

import (
	"Go_Uploader/config"
	"Go_Uploader/internal/handler"
	"Go_Uploader/internal/mq"
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/service"
	"Go_Uploader/internal/storage"
	"Go_Uploader/router"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
)

// main initializes services and starts the HTTP server.
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
	var pub mq.Publisher
	if config.AppConfig.RabbitMQEnable {
		pub = mq.Shared{}
	}
	handler.Init(uploader, pub)

	ln, err := net.Listen("tcp", config.AppConfig.HTTPAddr)
	if err != nil {
		log.Fatalf("listen %s fail: %v", config.AppConfig.HTTPAddr, err)
	}
	if config.AppConfig.HTTPMaxConns > 0 {
		ln = netutil.LimitListener(ln, config.AppConfig.HTTPMaxConns)
	}

	srv := &http.Server{
		Handler:           router.InitRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("http server listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := uploader.Shutdown(shutdownCtx); err != nil {
		log.Printf("uploader shutdown: %v", err)
	}
	mq.ClosePublisher()
}
