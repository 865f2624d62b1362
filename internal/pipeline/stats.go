package pipeline

import (
	"sync/atomic"
	"time"
)

// Stats are the pipeline's aggregate counters. All fields use atomic update
// semantics; stages increment them without locks.
type Stats struct {
	start time.Time
	runID string

	Captured       atomic.Int64
	Admitted       atomic.Int64
	DroppedSkip    atomic.Int64
	DroppedBacklog atomic.Int64
	Detections     atomic.Int64
	Candidates     atomic.Int64
	Emitted        atomic.Int64
	Invalid        atomic.Int64

	DetectErrors    atomic.Int64
	RecognizeErrors atomic.Int64
	SinkErrors      atomic.Int64
}

func NewStats(runID string) *Stats {
	return &Stats{start: time.Now(), runID: runID}
}

// Report is a point-in-time snapshot, also the shape of the termination
// report and of the /stats HTTP response.
type Report struct {
	RunID          string  `json:"run_id"`
	Uptime         string  `json:"uptime"`
	Captured       int64   `json:"frames_captured"`
	Admitted       int64   `json:"frames_admitted"`
	DroppedSkip    int64   `json:"frames_dropped_skip"`
	DroppedBacklog int64   `json:"frames_dropped_backlog"`
	Detections     int64   `json:"detections"`
	Candidates     int64   `json:"plate_candidates"`
	Emitted        int64   `json:"records_emitted"`
	Invalid        int64   `json:"records_invalid"`
	DetectErrors   int64   `json:"detect_errors"`
	RecognizeErrs  int64   `json:"recognize_errors"`
	SinkErrors     int64   `json:"sink_errors"`
	EffectiveFPS   float64 `json:"effective_fps"`
	DetectionsSec  float64 `json:"detections_per_sec"`
}

func (s *Stats) Snapshot() Report {
	elapsed := time.Since(s.start)
	secs := elapsed.Seconds()
	r := Report{
		RunID:          s.runID,
		Uptime:         elapsed.Round(time.Millisecond).String(),
		Captured:       s.Captured.Load(),
		Admitted:       s.Admitted.Load(),
		DroppedSkip:    s.DroppedSkip.Load(),
		DroppedBacklog: s.DroppedBacklog.Load(),
		Detections:     s.Detections.Load(),
		Candidates:     s.Candidates.Load(),
		Emitted:        s.Emitted.Load(),
		Invalid:        s.Invalid.Load(),
		DetectErrors:   s.DetectErrors.Load(),
		RecognizeErrs:  s.RecognizeErrors.Load(),
		SinkErrors:     s.SinkErrors.Load(),
	}
	if secs > 0 {
		r.EffectiveFPS = float64(r.Admitted) / secs
		r.DetectionsSec = float64(r.Detections) / secs
	}
	return r
}
