package session

// PlanChunks returns how many chunks of chunkSize bytes cover fileSize bytes.
// An empty file has zero chunks.
func PlanChunks(fileSize, chunkSize int64) (int, error) {
	if chunkSize <= 0 {
		return 0, invalidInput("plan chunks", "chunk size must be positive, got %d", chunkSize)
	}
	if fileSize < 0 {
		return 0, invalidInput("plan chunks", "file size must not be negative, got %d", fileSize)
	}
	return int((fileSize + chunkSize - 1) / chunkSize), nil
}

// ChunkRange returns the byte offset and length of chunk n. The last chunk
// may be shorter than chunkSize.
func ChunkRange(fileSize, chunkSize int64, n int) (offset, length int64) {
	offset = int64(n) * chunkSize
	length = chunkSize
	if remain := fileSize - offset; remain < chunkSize {
		length = remain
	}
	if length < 0 {
		length = 0
	}
	return offset, length
}
