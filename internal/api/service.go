package api

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/pipeline"
	"github.com/krishnanrx/parkwise/internal/plate"
)

// ErrBadImage is returned when the submitted bytes do not decode to an image.
var ErrBadImage = errors.New("image data could not be decoded")

// RecognizeService runs Detector → Recognizer → Postprocessor synchronously
// for single submitted images, reusing the pipeline's inference stage but not
// its streaming queues. Inference serializes interpreter access itself; the
// service's own mutex guards its postprocessor state across handlers.
type RecognizeService struct {
	mu        sync.Mutex
	inference *pipeline.Inference
	post      *plate.Postprocessor
	seq       atomic.Int64
}

func NewRecognizeService(inf *pipeline.Inference, post *plate.Postprocessor) *RecognizeService {
	return &RecognizeService{inference: inf, post: post}
}

// Recognize decodes the image and returns the resulting records. The list is
// empty when nothing was detected or everything was rejected.
func (s *RecognizeService) Recognize(imageBytes []byte) ([]plate.Record, error) {
	img, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, ErrBadImage
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrBadImage
	}

	index := s.seq.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, candidates := s.inference.Run(img, index)
	return s.post.Process(candidates, time.Now()), nil
}
