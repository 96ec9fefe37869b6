package storage

import (
	"Go_Uploader/config"
	"log"
)

// InitFromConfig initializes the store the transfer backend writes to.
func InitFromConfig() {
	switch config.TransferConfigInstance.Backend {
	case config.BackendS3:
		InitS3()
	case config.BackendDelay:
		log.Println("delay transfer backend, object storage skipped")
	default:
		InitMinio()
	}
}
