//go:build gocv

package frames

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"
)

func init() {
	for _, ext := range []string{".mp4", ".mov", ".avi", ".mkv"} {
		RegisterFormat(ext, func(identifier string) (Stream, error) {
			return OpenCapture(identifier)
		})
	}
}

// CaptureStream reads frames through OpenCV's video capture.
type CaptureStream struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
	fps float64
	n   int
}

// OpenCapture opens a container file with OpenCV.
func OpenCapture(path string) (*CaptureStream, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrOpen, path)
	}
	return &CaptureStream{
		vc:  vc,
		mat: gocv.NewMat(),
		fps: vc.Get(gocv.VideoCaptureFPS),
		n:   int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

func (s *CaptureStream) FrameRate() float64 { return s.fps }
func (s *CaptureStream) TotalFrames() int   { return s.n }

func (s *CaptureStream) Next() (image.Image, error) {
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, io.EOF
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

func (s *CaptureStream) Close() error {
	s.mat.Close()
	return s.vc.Close()
}
