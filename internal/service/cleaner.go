package service

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/transfer"
	"Go_Uploader/utils"
	"context"
	"errors"
	"fmt"
	"log"
)

// Cleaner removes every trace of an upload: stored chunk objects, chunk
// records, the file record and the cached snapshot.
type Cleaner struct {
	store     repo.ProgressStore
	transfer  transfer.Transferer
	snapshots *utils.CacheManager
}

// NewCleaner builds a cleaner. transfer and snapshots may be nil.
func NewCleaner(store repo.ProgressStore, t transfer.Transferer, snapshots *utils.CacheManager) *Cleaner {
	return &Cleaner{store: store, transfer: t, snapshots: snapshots}
}

// Cleanup deletes the records of name. Unknown names are a no-op.
func (c *Cleaner) Cleanup(ctx context.Context, name string) error {
	file, err := c.store.FindByName(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		c.dropSnapshot(ctx, name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find %s: %w", name, err)
	}

	if c.transfer != nil {
		if err := transfer.Purge(ctx, c.transfer, file); err != nil {
			log.Printf("upload cleaner: purge objects of %s failed: %v", name, err)
		}
	}
	if err := c.store.DeleteAllChunks(ctx, file.ID); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", name, err)
	}
	if err := c.store.DeleteFile(ctx, file.ID); err != nil {
		return fmt.Errorf("delete record of %s: %w", name, err)
	}
	c.dropSnapshot(ctx, name)
	log.Printf("upload cleaner: %s removed", name)
	return nil
}

func (c *Cleaner) dropSnapshot(ctx context.Context, name string) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.InvalidateUploadSnapshot(ctx, name); err != nil {
		log.Printf("upload cleaner: drop snapshot of %s failed: %v", name, err)
	}
}
