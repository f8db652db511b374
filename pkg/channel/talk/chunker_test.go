package talk

import (
	"strings"
	"testing"
)

func TestSplitMessageEmpty(t *testing.T) {
	if chunks := splitMessage("", 100); chunks != nil {
		t.Fatalf("splitMessage(\"\") = %v, want nil", chunks)
	}
}

func TestSplitMessageFitsInOneChunk(t *testing.T) {
	chunks := splitMessage("hello world", 100)
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("chunks = %v, want [hello world]", chunks)
	}
}

func TestSplitMessageHardCutWithoutSeparators(t *testing.T) {
	maxLen := 100
	content := strings.Repeat("x", 2*maxLen+1)

	chunks := splitMessage(content, maxLen)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > maxLen {
			t.Fatalf("chunk %d length = %d, exceeds %d", i, len(chunk), maxLen)
		}
		if chunk == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
	if strings.Join(chunks, "") != content {
		t.Fatal("concatenated chunks do not reproduce content")
	}
}

func TestSplitMessagePrefersNewline(t *testing.T) {
	content := strings.Repeat("a", 40) + "\n" + strings.Repeat("b", 40)

	chunks := splitMessage(content, 50)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 40) {
		t.Fatalf("chunk 0 = %q, want run of a up to the newline", chunks[0])
	}
	if chunks[1] != strings.Repeat("b", 40) {
		t.Fatalf("chunk 1 = %q, want run of b", chunks[1])
	}
}

func TestSplitMessageFallsBackToSpace(t *testing.T) {
	content := strings.Repeat("a", 40) + " " + strings.Repeat("b", 40)

	chunks := splitMessage(content, 50)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 40) {
		t.Fatalf("chunk 0 = %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("b", 40) {
		t.Fatalf("chunk 1 = %q", chunks[1])
	}
}

func TestSplitMessageTrimsRemainderWhitespace(t *testing.T) {
	content := strings.Repeat("a", 30) + "\n\n\n" + strings.Repeat("b", 30)

	chunks := splitMessage(content, 32)
	for i, chunk := range chunks {
		if chunk != strings.TrimSpace(chunk) {
			t.Fatalf("chunk %d = %q carries boundary whitespace", i, chunk)
		}
		if chunk == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestSplitMessageKeepsRunesIntact(t *testing.T) {
	content := strings.Repeat("ü", 60) // 2 bytes each, no separators

	chunks := splitMessage(content, 25)
	for i, chunk := range chunks {
		if len(chunk) > 25 {
			t.Fatalf("chunk %d length = %d, exceeds 25", i, len(chunk))
		}
		if !strings.HasPrefix(strings.Repeat("ü", 60), chunk) && !strings.Contains(content, chunk) {
			t.Fatalf("chunk %d = %q is not a substring", i, chunk)
		}
	}
	if strings.Join(chunks, "") != content {
		t.Fatal("concatenated chunks do not reproduce content")
	}
}
