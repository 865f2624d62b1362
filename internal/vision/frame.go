package vision

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured image with its position in the stream. The Mat is
// owned by whichever stage currently holds the frame; the holder must call
// Close exactly once when it is done.
type Frame struct {
	// Index is a monotonically increasing counter starting from 0 that
	// uniquely identifies each captured frame within one run.
	Index int64

	// Timestamp records when the frame was read from the source.
	Timestamp time.Time

	// Image holds the raw BGR pixels.
	Image gocv.Mat
}

// Close releases the underlying pixel buffer.
func (f *Frame) Close() {
	f.Image.Close()
}
