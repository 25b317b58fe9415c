// Package testutil provides fixtures shared by package tests: synthetic
// Y4M clips and small HTTP assertions.
package testutil

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/watchpost/internal/frames"
)

// Clip frame size. Small enough that extraction is effectively instant.
const (
	ClipWidth  = 16
	ClipHeight = 12
)

// GrayFrame returns a w×h frame filled with v.
func GrayFrame(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// ClipBytes encodes one uniform ClipWidth×ClipHeight frame per value as a
// 4:2:0 Y4M stream with neutral chroma.
func ClipBytes(t testing.TB, fps int, values ...uint8) []byte {
	t.Helper()
	imgs := make([]*image.Gray, len(values))
	for i, v := range values {
		imgs[i] = GrayFrame(ClipWidth, ClipHeight, v)
	}
	var buf bytes.Buffer
	if err := frames.WriteY4M(&buf, fps, imgs); err != nil {
		t.Fatalf("WriteY4M: %v", err)
	}
	return buf.Bytes()
}

// WriteClip writes ClipBytes to dir/name and returns the path.
func WriteClip(t testing.TB, dir, name string, fps int, values ...uint8) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, ClipBytes(t, fps, values...), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

// Cycle repeats pattern until it has n values.
func Cycle(n int, pattern ...uint8) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
