// Package chunking cuts file content into line-aligned chunks sized for
// embedding. Chunk identity is reproducible from inputs alone; deleting
// a file's chunks by stored path depends on that.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/codegraphhq/codegraph/internal/models"
)

// DefaultMaxChunkBytes targets roughly half a page of code per chunk.
const DefaultMaxChunkBytes = 2000

// ChunkID derives the stable identifier for one chunk of a file.
func ChunkID(repository, filePath string, index int) string {
	return fmt.Sprintf("%s:%s:%d", repository, filePath, index)
}

// FileInfo carries source file attributes recorded on every chunk.
type FileInfo struct {
	SizeBytes  int64
	ModifiedAt time.Time
}

type Chunker struct {
	maxBytes int
}

func NewChunker(maxBytes int) *Chunker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}
	return &Chunker{maxBytes: maxBytes}
}

// ChunkFile splits content into chunks of at most maxBytes without ever
// splitting a line; a single line longer than maxBytes becomes its own
// chunk. Lines are 1-based. Empty content yields no chunks.
func (c *Chunker) ChunkFile(repository, filePath string, content []byte, info FileInfo) []models.FileChunk {
	if len(content) == 0 {
		return nil
	}

	hash := sha256.Sum256(content)
	meta := models.ChunkMetadata{
		Extension:      filepath.Ext(filePath),
		FileSizeBytes:  info.SizeBytes,
		ContentHash:    hex.EncodeToString(hash[:]),
		FileModifiedAt: info.ModifiedAt,
	}
	if meta.FileSizeBytes == 0 {
		meta.FileSizeBytes = int64(len(content))
	}

	var chunks []models.FileChunk
	var buf []byte
	startLine := 1
	lastLine := 0

	flush := func(endLine int) {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, models.FileChunk{
			Content:    string(buf),
			FilePath:   filePath,
			Repository: repository,
			ChunkIndex: len(chunks),
			StartLine:  startLine,
			EndLine:    endLine,
			Metadata:   meta,
		})
		buf = nil
	}

	for i, line := range splitLines(content) {
		lineNo := i + 1
		if len(buf) > 0 && len(buf)+len(line) > c.maxBytes {
			flush(lineNo - 1)
			startLine = lineNo
		}
		buf = append(buf, line...)
		lastLine = lineNo
	}
	flush(lastLine)

	for i := range chunks {
		chunks[i].ID = ChunkID(repository, filePath, i)
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// splitLines keeps each line's terminator so chunk contents concatenate
// back to the original file.
func splitLines(content []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return lines
}
