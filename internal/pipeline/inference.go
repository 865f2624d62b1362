package pipeline

import (
	"image"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/detect"
	"github.com/krishnanrx/parkwise/internal/ocr"
	"github.com/krishnanrx/parkwise/internal/plate"
)

// Inference binds the Detector and Recognizer capabilities into one stage:
// frame in, plate candidates out. Stateless across frames; a failed call on
// one region skips that region only and is never fatal to the frame.
//
// The tflite interpreters admit one caller at a time, so Run holds a mutex
// for the whole pass. That lets the streaming worker and the HTTP service
// share a single Inference instance.
type Inference struct {
	mu           sync.Mutex
	detector     detect.Detector
	recognizer   ocr.Recognizer
	vehicleIDs   []int
	motorcycleID int
	stats        *Stats
	log          zerolog.Logger
}

func NewInference(d detect.Detector, r ocr.Recognizer, vehicleIDs []int, motorcycleID int, stats *Stats, log zerolog.Logger) *Inference {
	return &Inference{
		detector:     d,
		recognizer:   r,
		vehicleIDs:   vehicleIDs,
		motorcycleID: motorcycleID,
		stats:        stats,
		log:          log,
	}
}

// Run detects vehicles in the image and reads the plate region of each one.
// Both return values may be empty; errors are contained here and surface only
// as warnings and counters.
func (inf *Inference) Run(img gocv.Mat, frameIndex int64) ([]detect.Detection, []plate.Candidate) {
	inf.mu.Lock()
	defer inf.mu.Unlock()

	detections, err := inf.detector.Detect(img)
	if err != nil {
		inf.stats.DetectErrors.Add(1)
		inf.log.Warn().Err(err).Int64("frame", frameIndex).Msg("detector failed, treating as zero detections")
		return nil, nil
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	var candidates []plate.Candidate
	var vehicles []detect.Detection
	for _, d := range detections {
		if !detect.IsVehicle(d.ClassID, inf.vehicleIDs) {
			continue
		}
		vehicles = append(vehicles, d)
		inf.stats.Detections.Add(1)

		region := detect.PlateRegion(d, bounds, inf.motorcycleID)
		if region.Empty() {
			continue
		}

		crop := img.Region(region)
		text, conf, rerr := inf.recognizer.Recognize(crop)
		crop.Close()
		if rerr != nil {
			inf.stats.RecognizeErrors.Add(1)
			inf.log.Warn().Err(rerr).Int64("frame", frameIndex).Msg("recognizer failed, skipping region")
			continue
		}
		if text == "" {
			continue
		}

		inf.stats.Candidates.Add(1)
		candidates = append(candidates, plate.Candidate{
			FrameIndex: frameIndex,
			Box:        region,
			Text:       text,
			Confidence: conf,
		})
	}
	return vehicles, candidates
}
