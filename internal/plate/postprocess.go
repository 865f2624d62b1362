package plate

import (
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Candidate is one raw OCR read of a plate region in a frame.
type Candidate struct {
	FrameIndex int64
	Box        image.Rectangle
	Text       string
	Confidence float32
}

// Record is an accepted plate sighting, immutable once constructed.
type Record struct {
	ID         string          `json:"id"`
	FrameIndex int64           `json:"frame_index"`
	Text       string          `json:"plate"`
	Confidence float32         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
	Timestamp  time.Time       `json:"timestamp"`
	Valid      bool            `json:"valid"`
}

// Postprocessor applies, per candidate and in strict order: normalization,
// position-aware confusion correction, grammar validation and sliding-window
// deduplication. It is owned by a single worker and needs no locking there;
// the HTTP handler wraps its own instance in a mutex.
type Postprocessor struct {
	grammars   []Grammar
	confusion  ConfusionTable
	window     time.Duration
	logInvalid bool

	// seen maps normalized plate text to the last emission timestamp.
	// Entries expire once older than the window.
	seen map[string]time.Time
	log  zerolog.Logger
}

// NewPostprocessor builds the state machine. Patterns are tried in order;
// the first one whose corrected form validates wins.
func NewPostprocessor(patterns []string, confusion map[string]string, window time.Duration, logInvalid bool, log zerolog.Logger) *Postprocessor {
	grammars := make([]Grammar, 0, len(patterns))
	for _, p := range patterns {
		grammars = append(grammars, ParseGrammar(p))
	}
	return &Postprocessor{
		grammars:   grammars,
		confusion:  NewConfusionTable(confusion),
		window:     window,
		logInvalid: logInvalid,
		seen:       make(map[string]time.Time),
		log:        log,
	}
}

// Process turns one frame's candidates into accepted records. ts is the
// frame's capture timestamp; dedup timing is measured on it, not wall clock,
// so recorded streams replay deterministically.
func (p *Postprocessor) Process(candidates []Candidate, ts time.Time) []Record {
	if len(candidates) == 0 {
		return nil
	}

	p.expire(ts)

	// Same-frame tie-break: candidates normalizing to the same text keep
	// only the highest-confidence read, before any dedup lookup.
	best := make(map[string]Candidate, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		norm := Normalize(c.Text)
		if norm == "" {
			continue
		}
		prev, ok := best[norm]
		if !ok {
			order = append(order, norm)
			best[norm] = c
		} else if c.Confidence > prev.Confidence {
			best[norm] = c
		}
	}

	var records []Record
	for _, norm := range order {
		c := best[norm]
		text, valid := p.correct(norm)

		if !valid {
			p.log.Debug().Str("text", text).Int64("frame", c.FrameIndex).Msg("plate failed grammar validation")
			if !p.logInvalid {
				continue
			}
			records = append(records, p.record(c, text, ts, false))
			continue
		}

		// The window slides: every sighting refreshes the timestamp, so a
		// plate sitting in view stays suppressed until it leaves the frame
		// for a full window.
		if last, ok := p.seen[text]; ok && ts.Sub(last) < p.window {
			p.seen[text] = ts
			p.log.Debug().Str("plate", text).Int64("frame", c.FrameIndex).Msg("duplicate within dedup window")
			continue
		}
		p.seen[text] = ts
		records = append(records, p.record(c, text, ts, true))
	}
	return records
}

// correct runs confusion correction and validation against the configured
// grammars in order and returns the first fully-validating corrected text.
// When none validates, the normalized text is returned with valid=false.
func (p *Postprocessor) correct(norm string) (string, bool) {
	for _, g := range p.grammars {
		if g.Len() != len(norm) {
			continue
		}
		if corrected, ok := p.confusion.Correct(norm, g); ok {
			return corrected, true
		}
	}
	return norm, false
}

func (p *Postprocessor) record(c Candidate, text string, ts time.Time, valid bool) Record {
	return Record{
		ID:         uuid.NewString(),
		FrameIndex: c.FrameIndex,
		Text:       text,
		Confidence: c.Confidence,
		Box:        c.Box,
		Timestamp:  ts,
		Valid:      valid,
	}
}

// expire drops dedup entries whose last sighting is outside the window,
// keeping the map bounded on long runs.
func (p *Postprocessor) expire(now time.Time) {
	for text, last := range p.seen {
		if now.Sub(last) >= p.window {
			delete(p.seen, text)
		}
	}
}
