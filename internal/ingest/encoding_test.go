package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeFileContentUTF8(t *testing.T) {
	assert.Equal(t, "héllo", DecodeFileContent([]byte("héllo")))
}

func TestDecodeFileContentStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("package main")...)
	assert.Equal(t, "package main", DecodeFileContent(data))
}

func TestDecodeFileContentLatin1Fallback(t *testing.T) {
	// 0xE9 is é in latin-1 but an invalid standalone byte in UTF-8.
	got := DecodeFileContent([]byte{'c', 'a', 'f', 0xE9})
	assert.Equal(t, "café", got)
}

func TestDecodeFileContentEmpty(t *testing.T) {
	assert.Equal(t, "", DecodeFileContent(nil))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("one"))
	assert.Equal(t, 1, countLines("one\n"))
	assert.Equal(t, 3, countLines("a\nb\nc"))
	assert.Equal(t, 2, countLines("a\nb\n"))
}
