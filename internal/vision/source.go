package vision

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"gocv.io/x/gocv"
)

// ErrSourceUnavailable is returned by Next when the underlying device or
// stream can no longer produce frames. It is fatal to the capture stage.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// Source produces an ordered sequence of timestamped frames.
type Source interface {
	// Next blocks until the next frame is available. The caller owns the
	// returned frame and must Close it.
	Next() (Frame, error)
	Close() error
}

// CaptureSource reads frames from a camera index, a video file or a network
// stream URL through OpenCV. Frames larger than maxEdge on their long side
// are downscaled at capture time, so every downstream coordinate (detections,
// crops, overlay, logs) lives in one consistent space.
type CaptureSource struct {
	cap     *gocv.VideoCapture
	origin  string
	maxEdge int
	index   int64
}

// OpenSource opens the given origin. A purely numeric origin is treated as a
// camera device index, anything else as a file path or stream URL. maxEdge
// <= 0 disables downscaling.
func OpenSource(origin string, maxEdge int) (*CaptureSource, error) {
	var (
		cap *gocv.VideoCapture
		err error
	)
	if id, cerr := strconv.Atoi(origin); cerr == nil {
		cap, err = gocv.OpenVideoCapture(id)
	} else {
		cap, err = gocv.OpenVideoCapture(origin)
	}
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", origin, ErrSourceUnavailable)
	}
	return &CaptureSource{cap: cap, origin: origin, maxEdge: maxEdge}, nil
}

func (s *CaptureSource) Next() (Frame, error) {
	img := gocv.NewMat()
	if ok := s.cap.Read(&img); !ok {
		img.Close()
		return Frame{}, fmt.Errorf("read %q: %w", s.origin, ErrSourceUnavailable)
	}
	if img.Empty() {
		img.Close()
		return Frame{}, fmt.Errorf("empty frame from %q: %w", s.origin, ErrSourceUnavailable)
	}

	if s.maxEdge > 0 {
		long := img.Cols()
		if img.Rows() > long {
			long = img.Rows()
		}
		if long > s.maxEdge {
			scale := float64(s.maxEdge) / float64(long)
			resized := gocv.NewMat()
			gocv.Resize(img, &resized, image.Pt(0, 0), scale, scale, gocv.InterpolationArea)
			img.Close()
			img = resized
		}
	}

	f := Frame{Index: s.index, Timestamp: time.Now(), Image: img}
	s.index++
	return f, nil
}

func (s *CaptureSource) Close() error {
	return s.cap.Close()
}
