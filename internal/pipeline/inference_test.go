package pipeline

import (
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/detect"
)

// guardDetector trips when two callers are inside Detect at once, the
// condition the tflite interpreters cannot tolerate.
type guardDetector struct {
	inside atomic.Int32
	broken atomic.Bool
}

func (d *guardDetector) Detect(img gocv.Mat) ([]detect.Detection, error) {
	if d.inside.Add(1) > 1 {
		d.broken.Store(true)
	}
	time.Sleep(time.Millisecond)
	d.inside.Add(-1)
	return []detect.Detection{
		{Box: image.Rect(10, 10, 90, 90), ClassID: 2, Label: "car", Score: 0.9},
	}, nil
}

func (d *guardDetector) Close() error { return nil }

// One Inference instance is shared between the streaming worker and the HTTP
// service, so Run must admit one caller at a time.
func TestInferenceSerializesConcurrentCallers(t *testing.T) {
	det := &guardDetector{}
	rec := &fakeRecognizer{}
	inf := NewInference(det, rec, []int{2, 3}, 3, NewStats("test"), zerolog.Nop())

	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < 25; i++ {
				inf.Run(img, base+i)
			}
		}(int64(g) * 1000)
	}
	wg.Wait()

	if det.broken.Load() {
		t.Fatal("detector entered concurrently; inference must serialize callers")
	}
}
