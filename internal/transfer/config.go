package transfer

import (
	"Go_Uploader/config"
	"Go_Uploader/internal/storage"
	"fmt"
)

// FromConfig builds the backend selected by cfg. Object backends write to
// store. The result is throttled and bounded per chunk as configured.
func FromConfig(cfg *config.TransferConfig, store storage.Store, bucket string) (Transferer, error) {
	var t Transferer
	switch cfg.Backend {
	case config.BackendDelay:
		t = Delay(cfg.Delay)
	case config.BackendMinio, config.BackendS3, "":
		if store == nil {
			return nil, fmt.Errorf("transfer backend %q: storage not initialized", cfg.Backend)
		}
		t = NewObjectTransfer(store, bucket, cfg.ChunkPrefix)
	default:
		return nil, fmt.Errorf("unknown transfer backend %q", cfg.Backend)
	}
	t = WithTimeout(t, config.AppConfig.UploadTransferTimeout)
	t = Limited(t, NewLimiter(config.AppConfig.UploadRate, config.AppConfig.UploadBurst))
	return t, nil
}
