package frames

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	y4mMagic       = "YUV4MPEG2"
	y4mFrameTag    = "FRAME"
	maxHeaderBytes = 1024

	// maxDimension bounds the declared frame width and height.
	maxDimension = 16384
)

func init() {
	RegisterFormat(".y4m", func(identifier string) (Stream, error) {
		return OpenY4M(identifier)
	})
}

type y4mLayout int

const (
	layout420 y4mLayout = iota
	layout422
	layout444
	layoutMono
)

// Y4MStream decodes a YUV4MPEG2 file. Frames are returned as *image.YCbCr, or
// *image.Gray for monochrome streams.
type Y4MStream struct {
	closer io.Closer
	r      *bufio.Reader
	width  int
	height int
	fps    float64
	total  int
	layout y4mLayout
}

// OpenY4M opens a .y4m file. The frame count is derived from the file size
// assuming parameterless frame headers.
func OpenY4M(path string) (*Y4MStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	s, headerLen, err := newY4MStream(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	perFrame := int64(len(y4mFrameTag)+1) + int64(s.frameBytes())
	if remaining := info.Size() - int64(headerLen); remaining > 0 {
		s.total = int(remaining / perFrame)
	}
	if s.total == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s holds no complete %dx%d frame", ErrOpen, path, s.width, s.height)
	}
	return s, nil
}

// NewY4MReader decodes a YUV4MPEG2 byte stream. TotalFrames reports 0 since
// the length is unknown.
func NewY4MReader(r io.Reader) (*Y4MStream, error) {
	s, _, err := newY4MStream(r, nil)
	return s, err
}

func newY4MStream(r io.Reader, closer io.Closer) (*Y4MStream, int, error) {
	br := bufio.NewReader(r)
	line, err := readHeaderLine(br)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading y4m header: %v", ErrOpen, err)
	}
	s := &Y4MStream{closer: closer, r: br}
	if err := s.parseHeader(line); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return s, len(line) + 1, nil
}

func readHeaderLine(br *bufio.Reader) (string, error) {
	var buf bytes.Buffer
	for buf.Len() < maxHeaderBytes {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
	return "", errors.New("header line too long")
}

func (s *Y4MStream) parseHeader(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != y4mMagic {
		return errors.New("missing YUV4MPEG2 signature")
	}
	s.layout = layout420
	for _, field := range fields[1:] {
		if len(field) < 2 {
			continue
		}
		val := field[1:]
		switch field[0] {
		case 'W':
			w, err := strconv.Atoi(val)
			if err != nil || w <= 0 || w > maxDimension {
				return fmt.Errorf("invalid width %q", val)
			}
			s.width = w
		case 'H':
			h, err := strconv.Atoi(val)
			if err != nil || h <= 0 || h > maxDimension {
				return fmt.Errorf("invalid height %q", val)
			}
			s.height = h
		case 'F':
			num, den, ok := strings.Cut(val, ":")
			n, err1 := strconv.ParseFloat(num, 64)
			d, err2 := strconv.ParseFloat(den, 64)
			if ok && err1 == nil && err2 == nil && d > 0 {
				s.fps = n / d
			}
		case 'C':
			switch val {
			case "420", "420jpeg", "420paldv", "420mpeg2":
				s.layout = layout420
			case "422":
				s.layout = layout422
			case "444":
				s.layout = layout444
			case "mono":
				s.layout = layoutMono
			default:
				return fmt.Errorf("unsupported colorspace %q", val)
			}
		}
	}
	if s.width == 0 || s.height == 0 {
		return errors.New("header missing frame dimensions")
	}
	return nil
}

func (s *Y4MStream) chromaSize() (int, int) {
	switch s.layout {
	case layout420:
		return (s.width + 1) / 2, (s.height + 1) / 2
	case layout422:
		return (s.width + 1) / 2, s.height
	case layout444:
		return s.width, s.height
	default:
		return 0, 0
	}
}

func (s *Y4MStream) frameBytes() int {
	cw, ch := s.chromaSize()
	return s.width*s.height + 2*cw*ch
}

func (s *Y4MStream) FrameRate() float64 { return s.fps }
func (s *Y4MStream) TotalFrames() int   { return s.total }

// Width and Height return the frame dimensions from the stream header.
func (s *Y4MStream) Width() int  { return s.width }
func (s *Y4MStream) Height() int { return s.height }

func (s *Y4MStream) Next() (image.Image, error) {
	tag, err := s.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(tag) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	if !strings.HasPrefix(tag, y4mFrameTag) {
		return nil, fmt.Errorf("unexpected frame header %q", strings.TrimSpace(tag))
	}

	rect := image.Rect(0, 0, s.width, s.height)
	if s.layout == layoutMono {
		img := image.NewGray(rect)
		if _, err := io.ReadFull(s.r, img.Pix); err != nil {
			return nil, fmt.Errorf("reading luma plane: %w", err)
		}
		return img, nil
	}

	ratio := image.YCbCrSubsampleRatio420
	switch s.layout {
	case layout422:
		ratio = image.YCbCrSubsampleRatio422
	case layout444:
		ratio = image.YCbCrSubsampleRatio444
	}
	img := image.NewYCbCr(rect, ratio)
	for _, plane := range [][]byte{img.Y, img.Cb, img.Cr} {
		if _, err := io.ReadFull(s.r, plane); err != nil {
			return nil, fmt.Errorf("reading frame plane: %w", err)
		}
	}
	return img, nil
}

func (s *Y4MStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// WriteY4M encodes grayscale frames as a 4:2:0 YUV4MPEG2 stream with neutral
// chroma. All frames must share the first frame's dimensions.
func WriteY4M(w io.Writer, fps int, frames []*image.Gray) error {
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	b := frames[0].Bounds()
	width, height := b.Dx(), b.Dy()
	if _, err := fmt.Fprintf(w, "%s W%d H%d F%d:1 Ip A1:1 C420jpeg\n", y4mMagic, width, height, fps); err != nil {
		return err
	}
	chroma := bytes.Repeat([]byte{128}, 2*((width+1)/2)*((height+1)/2))
	for i, f := range frames {
		if f.Bounds().Dx() != width || f.Bounds().Dy() != height {
			return fmt.Errorf("frame %d: size %v differs from %dx%d", i, f.Bounds().Size(), width, height)
		}
		if _, err := io.WriteString(w, y4mFrameTag+"\n"); err != nil {
			return err
		}
		for y := 0; y < height; y++ {
			row := f.Pix[y*f.Stride : y*f.Stride+width]
			if _, err := w.Write(row); err != nil {
				return err
			}
		}
		if _, err := w.Write(chroma); err != nil {
			return err
		}
	}
	return nil
}
