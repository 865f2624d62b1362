package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/detect"
	"github.com/krishnanrx/parkwise/internal/plate"
	"github.com/krishnanrx/parkwise/internal/sink"
	"github.com/krishnanrx/parkwise/internal/vision"
)

// fakeSource produces n synthetic frames, then fails like a disconnected
// stream.
type fakeSource struct {
	n     int64
	index int64
}

func (s *fakeSource) Next() (vision.Frame, error) {
	if s.index >= s.n {
		return vision.Frame{}, vision.ErrSourceUnavailable
	}
	f := vision.Frame{
		Index:     s.index,
		Timestamp: time.Unix(0, 0).Add(time.Duration(s.index) * 100 * time.Millisecond),
		Image:     gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3),
	}
	s.index++
	return f, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeDetector reports one car per frame.
type fakeDetector struct {
	err error
}

func (d *fakeDetector) Detect(img gocv.Mat) ([]detect.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []detect.Detection{
		{Box: image.Rect(10, 10, 90, 90), ClassID: 2, Label: "car", Score: 0.9},
	}, nil
}

func (d *fakeDetector) Close() error { return nil }

// fakeRecognizer returns a fresh valid plate per call so nothing dedups.
type fakeRecognizer struct {
	calls int
}

func (r *fakeRecognizer) Recognize(crop gocv.Mat) (string, float32, error) {
	r.calls++
	return fmt.Sprintf("AB%02d", r.calls%100), 0.9, nil
}

func (r *fakeRecognizer) Close() error { return nil }

// captureSink records appended plates in order.
type captureSink struct {
	records []plate.Record
	fail    bool
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Append(rec plate.Record) error {
	if s.fail {
		return errors.New("destination unavailable")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) Close() error { return nil }

func newTestPipeline(src vision.Source, det detect.Detector, rec *fakeRecognizer, recorders []sink.Sink, skip int) (*Pipeline, *Stats) {
	stats := NewStats("test")
	log := zerolog.Nop()
	inf := NewInference(det, rec, []int{2, 3}, 3, stats, log)
	post := plate.NewPostprocessor([]string{"LLDD"}, map[string]string{"O": "0"}, 5*time.Second, false, log)
	p := New(Options{
		Source:    src,
		Inference: inf,
		Post:      post,
		// Ceiling and queue sized so backlog shedding cannot trigger; these
		// tests pin down the skip policy and ordering, not load shedding.
		Gate:      NewGate(skip, 1000),
		Recorders: recorders,
		Stats:     stats,
		QueueSize: 64,
		Log:       log,
	})
	return p, stats
}

func TestRunProcessesEveryKthFrameInOrder(t *testing.T) {
	rec := &fakeRecognizer{}
	out := &captureSink{}
	p, stats := newTestPipeline(&fakeSource{n: 30}, &fakeDetector{}, rec, []sink.Sink{out}, 3)

	err := p.Run(context.Background())
	if !errors.Is(err, vision.ErrSourceUnavailable) {
		t.Fatalf("Run error = %v, want ErrSourceUnavailable", err)
	}

	if got := stats.Captured.Load(); got != 30 {
		t.Errorf("captured %d, want 30", got)
	}
	if got := stats.Admitted.Load(); got != 10 {
		t.Errorf("admitted %d, want 10 (every 3rd of 30)", got)
	}

	// Emitted frame indices must be a strictly increasing, non-contiguous
	// subsequence of the admitted positions.
	last := int64(-1)
	for _, r := range out.records {
		if r.FrameIndex <= last {
			t.Fatalf("frame indices out of order: %d after %d", r.FrameIndex, last)
		}
		if r.FrameIndex%3 != 0 {
			t.Fatalf("frame %d reached sinks but is not on a skip position", r.FrameIndex)
		}
		last = r.FrameIndex
	}
	if len(out.records) != 10 {
		t.Errorf("sink received %d records, want 10", len(out.records))
	}
}

func TestRunSurvivesDetectorFailure(t *testing.T) {
	rec := &fakeRecognizer{}
	out := &captureSink{}
	p, stats := newTestPipeline(&fakeSource{n: 9}, &fakeDetector{err: errors.New("backend gone")}, rec, []sink.Sink{out}, 1)

	if err := p.Run(context.Background()); !errors.Is(err, vision.ErrSourceUnavailable) {
		t.Fatalf("Run error = %v, want ErrSourceUnavailable", err)
	}
	if got := stats.DetectErrors.Load(); got != 9 {
		t.Errorf("detect errors %d, want 9", got)
	}
	if len(out.records) != 0 {
		t.Errorf("sink received %d records, want 0", len(out.records))
	}
}

func TestRunSurvivesSinkFailure(t *testing.T) {
	rec := &fakeRecognizer{}
	failing := &captureSink{fail: true}
	working := &captureSink{}
	p, stats := newTestPipeline(&fakeSource{n: 6}, &fakeDetector{}, rec, []sink.Sink{failing, working}, 1)

	if err := p.Run(context.Background()); !errors.Is(err, vision.ErrSourceUnavailable) {
		t.Fatalf("Run error = %v, want ErrSourceUnavailable", err)
	}
	if stats.SinkErrors.Load() == 0 {
		t.Error("sink errors not counted")
	}
	// The other sink keeps receiving records.
	if len(working.records) != 6 {
		t.Errorf("working sink received %d records, want 6", len(working.records))
	}
}

// fakeDisplay asks to quit after showing a set number of frames.
type fakeDisplay struct {
	remaining int
	shown     int
}

func (d *fakeDisplay) Show(img gocv.Mat) bool {
	d.shown++
	return d.shown < d.remaining
}

func TestRunStopsWhenDisplayQuits(t *testing.T) {
	rec := &fakeRecognizer{}
	out := &captureSink{}
	p, _ := newTestPipeline(&fakeSource{n: 1 << 30}, &fakeDetector{}, rec, []sink.Sink{out}, 1)
	p.display = &fakeDisplay{remaining: 3}

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after display quit = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after the display asked to quit")
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	rec := &fakeRecognizer{}
	out := &captureSink{}
	p, _ := newTestPipeline(&fakeSource{n: 1 << 30}, &fakeDetector{}, rec, []sink.Sink{out}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain after cancel")
	}
}
