package chunking

import (
	"strings"
	"testing"
	"time"
)

func TestChunkIDContract(t *testing.T) {
	got := ChunkID("acme", "src/app.ts", 2)
	want := "acme:src/app.ts:2"
	if got != want {
		t.Errorf("ChunkID() = %q; want %q", got, want)
	}
}

func TestChunkFileEmptyContent(t *testing.T) {
	c := NewChunker(0)
	if chunks := c.ChunkFile("acme", "empty.ts", nil, FileInfo{}); len(chunks) != 0 {
		t.Errorf("ChunkFile(empty) = %d chunks; want 0", len(chunks))
	}
}

func TestChunkFileSingleChunk(t *testing.T) {
	c := NewChunker(100)
	content := []byte("line one\nline two\nline three\n")

	chunks := c.ChunkFile("acme", "src/a.ts", content, FileInfo{SizeBytes: 29, ModifiedAt: time.Unix(1700000000, 0)})
	if len(chunks) != 1 {
		t.Fatalf("ChunkFile() = %d chunks; want 1", len(chunks))
	}

	chunk := chunks[0]
	if chunk.ID != "acme:src/a.ts:0" {
		t.Errorf("ID = %q; want acme:src/a.ts:0", chunk.ID)
	}
	if chunk.Content != string(content) {
		t.Errorf("Content = %q; want the full file", chunk.Content)
	}
	if chunk.StartLine != 1 || chunk.EndLine != 3 {
		t.Errorf("lines = %d..%d; want 1..3", chunk.StartLine, chunk.EndLine)
	}
	if chunk.TotalChunks != 1 {
		t.Errorf("TotalChunks = %d; want 1", chunk.TotalChunks)
	}
	if chunk.Metadata.Extension != ".ts" {
		t.Errorf("Extension = %q; want .ts", chunk.Metadata.Extension)
	}
	if len(chunk.Metadata.ContentHash) != 64 {
		t.Errorf("ContentHash length = %d; want 64 hex chars", len(chunk.Metadata.ContentHash))
	}
}

func TestChunkFileNeverSplitsLines(t *testing.T) {
	c := NewChunker(25)
	content := []byte("aaaaaaaaaa\nbbbbbbbbbb\ncccccccccc\ndddddddddd\n")

	chunks := c.ChunkFile("acme", "src/a.ts", content, FileInfo{})
	if len(chunks) != 2 {
		t.Fatalf("ChunkFile() = %d chunks; want 2", len(chunks))
	}

	for i, chunk := range chunks {
		if !strings.HasSuffix(chunk.Content, "\n") {
			t.Errorf("chunk %d does not end on a line boundary: %q", i, chunk.Content)
		}
		if len(chunk.Content) > 25 {
			t.Errorf("chunk %d is %d bytes; want <= 25", i, len(chunk.Content))
		}
	}

	if chunks[0].StartLine != 1 || chunks[0].EndLine != 2 {
		t.Errorf("chunk 0 lines = %d..%d; want 1..2", chunks[0].StartLine, chunks[0].EndLine)
	}
	if chunks[1].StartLine != 3 || chunks[1].EndLine != 4 {
		t.Errorf("chunk 1 lines = %d..%d; want 3..4", chunks[1].StartLine, chunks[1].EndLine)
	}

	rejoined := chunks[0].Content + chunks[1].Content
	if rejoined != string(content) {
		t.Errorf("chunks do not reassemble the file:\n%q", rejoined)
	}
}

func TestChunkFileOversizedLine(t *testing.T) {
	c := NewChunker(10)
	content := []byte("short\n" + strings.Repeat("x", 40) + "\nshort\n")

	chunks := c.ChunkFile("acme", "src/a.ts", content, FileInfo{})
	if len(chunks) != 3 {
		t.Fatalf("ChunkFile() = %d chunks; want 3", len(chunks))
	}
	if len(chunks[1].Content) != 41 {
		t.Errorf("oversized line should be its own chunk; got %d bytes", len(chunks[1].Content))
	}
	if chunks[1].StartLine != 2 || chunks[1].EndLine != 2 {
		t.Errorf("oversized chunk lines = %d..%d; want 2..2", chunks[1].StartLine, chunks[1].EndLine)
	}
}

func TestChunkFileNoTrailingNewline(t *testing.T) {
	c := NewChunker(100)
	content := []byte("one\ntwo")

	chunks := c.ChunkFile("acme", "src/a.ts", content, FileInfo{})
	if len(chunks) != 1 {
		t.Fatalf("ChunkFile() = %d chunks; want 1", len(chunks))
	}
	if chunks[0].EndLine != 2 {
		t.Errorf("EndLine = %d; want 2", chunks[0].EndLine)
	}
	if chunks[0].Content != "one\ntwo" {
		t.Errorf("Content = %q; want both lines", chunks[0].Content)
	}
}

func TestChunkIndicesAndIDs(t *testing.T) {
	c := NewChunker(12)
	content := []byte("aaaaaaaaaa\nbbbbbbbbbb\ncccccccccc\n")

	chunks := c.ChunkFile("acme", "src/a.ts", content, FileInfo{})
	if len(chunks) != 3 {
		t.Fatalf("ChunkFile() = %d chunks; want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, chunk.ChunkIndex)
		}
		if chunk.ID != ChunkID("acme", "src/a.ts", i) {
			t.Errorf("chunk %d ID = %q", i, chunk.ID)
		}
		if chunk.TotalChunks != 3 {
			t.Errorf("chunk %d TotalChunks = %d; want 3", i, chunk.TotalChunks)
		}
	}
}
