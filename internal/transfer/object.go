package transfer

import (
	"Go_Uploader/internal/session"
	"Go_Uploader/internal/storage"
	"Go_Uploader/model"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// MetaChecksum is the object metadata key holding the blake2b-256 digest of a chunk.
const MetaChecksum = "Chunk-Blake2b"

// ObjectTransfer writes each chunk of a local file as its own object.
type ObjectTransfer struct {
	Store  storage.Store
	Bucket string
	Prefix string
}

// NewObjectTransfer builds an ObjectTransfer; an empty prefix means "chunks".
func NewObjectTransfer(store storage.Store, bucket, prefix string) *ObjectTransfer {
	if prefix == "" {
		prefix = "chunks"
	}
	return &ObjectTransfer{Store: store, Bucket: bucket, Prefix: prefix}
}

// ObjectKey returns the key chunk n of an upload is stored under.
func (t *ObjectTransfer) ObjectKey(uploadID string, n int) string {
	return path.Join(t.Prefix, uploadID, strconv.Itoa(n))
}

// TransferChunk reads the byte range of chunk n from file.Path and stores it.
func (t *ObjectTransfer) TransferChunk(ctx context.Context, file session.File, n int, chunkSize int64) error {
	if file.Path == "" {
		return errors.New("object transfer: file has no path")
	}
	if file.UploadID == "" {
		return errors.New("object transfer: file has no upload id")
	}
	offset, length := session.ChunkRange(file.Size, chunkSize, n)
	if length <= 0 {
		return fmt.Errorf("object transfer: chunk %d is out of range", n)
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, length), buf); err != nil {
		return fmt.Errorf("read chunk %d: %w", n, err)
	}
	sum := blake2b.Sum256(buf)

	key := t.ObjectKey(file.UploadID, n)
	err = t.Store.PutObject(ctx, t.Bucket, key, bytes.NewReader(buf), length, storage.PutOptions{
		ContentType: "application/octet-stream",
		Metadata: map[string]string{
			MetaChecksum: hex.EncodeToString(sum[:]),
		},
	})
	if err != nil {
		return fmt.Errorf("store chunk %d: %w", n, err)
	}
	return nil
}

// Purge removes every chunk object of file. Objects that were never written
// are ignored by the store.
func (t *ObjectTransfer) Purge(ctx context.Context, file *model.FileRecord) error {
	if file.UploadID == "" {
		return nil
	}
	var errs []error
	for n := 0; n < file.TotalChunks; n++ {
		if err := t.Store.RemoveObject(ctx, t.Bucket, t.ObjectKey(file.UploadID, n)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		log.Printf("object transfer: purge %s left %d objects", file.Name, len(errs))
	}
	return errors.Join(errs...)
}
