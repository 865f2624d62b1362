package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/krishnanrx/parkwise/internal/plate"
)

// JSONLLogger appends one self-describing JSON record per line.
type JSONLLogger struct {
	file *os.File
	enc  *json.Encoder
}

type jsonlRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Plate      string    `json:"plate"`
	Confidence float32   `json:"confidence"`
	Box        [4]int    `json:"box"` // x1, y1, x2, y2
	Valid      bool      `json:"valid"`
}

func NewJSONLLogger(path string) (*JSONLLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl log: %w", err)
	}
	return &JSONLLogger{file: f, enc: json.NewEncoder(f)}, nil
}

func (l *JSONLLogger) Name() string { return "jsonl" }

func (l *JSONLLogger) Append(rec plate.Record) error {
	return l.enc.Encode(jsonlRecord{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp,
		Plate:      rec.Text,
		Confidence: rec.Confidence,
		Box:        [4]int{rec.Box.Min.X, rec.Box.Min.Y, rec.Box.Max.X, rec.Box.Max.Y},
		Valid:      rec.Valid,
	})
}

func (l *JSONLLogger) Close() error {
	return l.file.Close()
}
