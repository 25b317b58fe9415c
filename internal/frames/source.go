// Package frames opens video identifiers as ordered, finite streams of raw
// frames. Decoding lives entirely behind the Stream interface; consumers only
// see image.Image values in source order plus the stream's metadata.
package frames

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrOpen is returned when an identifier cannot be opened as a decodable video.
	ErrOpen = errors.New("cannot open video source")

	// ErrUnsupportedFormat is returned when no decoder is registered for an identifier.
	ErrUnsupportedFormat = errors.New("unsupported video format")
)

// DefaultFrameRate is assumed when a source does not report its frame rate.
const DefaultFrameRate = 30.0

// Stream is an ordered sequence of raw frames.
type Stream interface {
	// FrameRate returns frames per second as reported by the container, or 0
	// when unknown.
	FrameRate() float64

	// TotalFrames returns the container's frame count, or 0 when unknown.
	TotalFrames() int

	// Next returns the next frame. It returns io.EOF after the last frame.
	Next() (image.Image, error)

	// Close releases decoder resources.
	Close() error
}

// Opener opens an identifier (normally a file path) as a Stream.
type Opener interface {
	Open(identifier string) (Stream, error)
}

// OpenFunc adapts a function to the Opener interface.
type OpenFunc func(identifier string) (Stream, error)

// Open calls f(identifier).
func (f OpenFunc) Open(identifier string) (Stream, error) { return f(identifier) }

var (
	formatsMu sync.RWMutex
	formats   = map[string]OpenFunc{}
)

// RegisterFormat makes a decoder available for a file extension such as
// ".y4m". Later registrations replace earlier ones.
func RegisterFormat(ext string, open OpenFunc) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats[strings.ToLower(ext)] = open
}

// SupportedExtensions returns the registered extensions in sorted order.
func SupportedExtensions() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported reports whether a decoder is registered for the identifier's extension.
func Supported(identifier string) bool {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	_, ok := formats[strings.ToLower(filepath.Ext(identifier))]
	return ok
}

// ByExtension dispatches on the identifier's file extension.
type ByExtension struct{}

// Open opens identifier with the decoder registered for its extension.
func (ByExtension) Open(identifier string) (Stream, error) {
	ext := strings.ToLower(filepath.Ext(identifier))
	formatsMu.RLock()
	open, ok := formats[ext]
	formatsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return open(identifier)
}
