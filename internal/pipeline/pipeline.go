// Package pipeline owns the staged real-time flow: capture → admission →
// inference+postprocessing → sinks, one worker per stage, connected by
// bounded single-producer/single-consumer channels.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/plate"
	"github.com/krishnanrx/parkwise/internal/sink"
	"github.com/krishnanrx/parkwise/internal/vision"
)

// Display renders annotated frames. Show returning false means the user asked
// to quit; the pipeline then stops capture and drains.
type Display interface {
	Show(img gocv.Mat) bool
}

// Result carries one admitted frame and its accepted records to the sink
// stage. The frame's Mat is owned by the holder of the Result.
type Result struct {
	Frame   vision.Frame
	Records []plate.Record
}

// Pipeline supervises the stage workers, the inter-stage queues, the stop
// signal and the aggregate counters.
type Pipeline struct {
	source    vision.Source
	inference *Inference
	post      *plate.Postprocessor
	gate      *Gate
	recorders []sink.Sink
	display   Display
	stats     *Stats
	queueSize int
	log       zerolog.Logger
}

// Options wires a Pipeline. Display may be nil.
type Options struct {
	Source    vision.Source
	Inference *Inference
	Post      *plate.Postprocessor
	Gate      *Gate
	Recorders []sink.Sink
	Display   Display
	Stats     *Stats
	QueueSize int
	Log       zerolog.Logger
}

func New(opts Options) *Pipeline {
	return &Pipeline{
		source:    opts.Source,
		inference: opts.Inference,
		post:      opts.Post,
		gate:      opts.Gate,
		recorders: opts.Recorders,
		display:   opts.Display,
		stats:     opts.Stats,
		queueSize: opts.QueueSize,
		log:       opts.Log,
	}
}

// Run executes the pipeline until the source is exhausted, the source fails,
// ctx is cancelled, or the user quits the display window. Cancellation is
// cooperative: capture stops producing, frames already admitted drain through
// the remaining stages, and all sinks are flushed and closed before Run
// returns. Only a source failure is returned as an error.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan vision.Frame, p.queueSize)
	results := make(chan Result, p.queueSize)

	var srcErr error
	var wg sync.WaitGroup
	wg.Add(3)

	// Capture: the only stage that may shed load. It never blocks on the
	// downstream queue; the gate plus a non-blocking send guarantee that.
	go func() {
		defer wg.Done()
		defer close(frames)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			f, err := p.source.Next()
			if err != nil {
				srcErr = err
				p.log.Error().Err(err).Msg("frame source failed, draining pipeline")
				return
			}
			p.stats.Captured.Add(1)

			switch p.gate.Decide(f.Index, len(frames)) {
			case DropSkip:
				p.stats.DroppedSkip.Add(1)
				f.Close()
			case DropBacklog:
				p.stats.DroppedBacklog.Add(1)
				f.Close()
			case Admit:
				select {
				case frames <- f:
					p.stats.Admitted.Add(1)
				default:
					// Queue filled between the depth check and the send.
					p.stats.DroppedBacklog.Add(1)
					f.Close()
				}
			}
		}
	}()

	// Inference + postprocessing: drains every admitted frame, blocks on the
	// sink queue rather than drop, so accepted records are never lost.
	go func() {
		defer wg.Done()
		defer close(results)
		for f := range frames {
			_, candidates := p.inference.Run(f.Image, f.Index)
			records := p.post.Process(candidates, f.Timestamp)
			for _, rec := range records {
				if rec.Valid {
					p.stats.Emitted.Add(1)
				} else {
					p.stats.Invalid.Add(1)
				}
			}
			results <- Result{Frame: f, Records: records}
		}
	}()

	// Sink dispatch: overlay display plus durable record logs. A write
	// failure drops the record from that sink only.
	go func() {
		defer wg.Done()
		display := p.display
		for r := range results {
			if display != nil {
				annotated := vision.DrawRecords(r.Frame.Image, r.Records)
				quit := !display.Show(annotated)
				annotated.Close()
				if quit {
					p.log.Info().Msg("display quit requested, stopping capture")
					display = nil
					cancel()
				}
			}
			for _, rec := range r.Records {
				for _, s := range p.recorders {
					if err := s.Append(rec); err != nil {
						p.stats.SinkErrors.Add(1)
						p.log.Warn().Err(err).Str("sink", s.Name()).Str("plate", rec.Text).Msg("sink write failed, record dropped from this sink")
					}
				}
			}
			r.Frame.Close()
		}
	}()

	wg.Wait()

	for _, s := range p.recorders {
		if err := s.Close(); err != nil {
			p.log.Warn().Err(err).Str("sink", s.Name()).Msg("sink close failed")
		}
	}

	report := p.stats.Snapshot()
	p.log.Info().
		Str("run_id", report.RunID).
		Int64("captured", report.Captured).
		Int64("admitted", report.Admitted).
		Int64("dropped_skip", report.DroppedSkip).
		Int64("dropped_backlog", report.DroppedBacklog).
		Int64("emitted", report.Emitted).
		Int64("invalid", report.Invalid).
		Int64("detect_errors", report.DetectErrors).
		Int64("recognize_errors", report.RecognizeErrs).
		Int64("sink_errors", report.SinkErrors).
		Float64("effective_fps", report.EffectiveFPS).
		Msg("pipeline terminated")

	return srcErr
}
