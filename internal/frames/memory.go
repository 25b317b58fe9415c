package frames

import (
	"image"
	"io"
)

// MemoryStream serves frames from a slice. It is safe for one consumer.
type MemoryStream struct {
	fps    float64
	total  int
	frames []image.Image
	pos    int
	closed bool
}

// NewMemoryStream returns a stream over frames whose reported frame count is
// len(frames).
func NewMemoryStream(fps float64, frames []image.Image) *MemoryStream {
	return &MemoryStream{fps: fps, total: len(frames), frames: frames}
}

// WithReportedTotal overrides the frame count the stream advertises, for
// containers whose metadata disagrees with their contents.
func (s *MemoryStream) WithReportedTotal(total int) *MemoryStream {
	s.total = total
	return s
}

func (s *MemoryStream) FrameRate() float64 { return s.fps }
func (s *MemoryStream) TotalFrames() int   { return s.total }

func (s *MemoryStream) Next() (image.Image, error) {
	if s.closed || s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *MemoryStream) Close() error {
	s.closed = true
	return nil
}
