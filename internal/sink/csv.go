package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/krishnanrx/parkwise/internal/plate"
)

var csvHeader = []string{"timestamp", "plate", "confidence", "x1", "y1", "x2", "y2"}

// CSVLogger appends one row per accepted record. The header is written once
// per file, only when the file is created empty.
type CSVLogger struct {
	file *os.File
	w    *csv.Writer
}

func NewCSVLogger(path string) (*CSVLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}
	l := &CSVLogger{file: f, w: csv.NewWriter(f)}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv log: %w", err)
	}
	if info.Size() == 0 {
		if err := l.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		l.w.Flush()
	}
	return l, nil
}

func (l *CSVLogger) Name() string { return "csv" }

func (l *CSVLogger) Append(rec plate.Record) error {
	row := []string{
		rec.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		rec.Text,
		strconv.FormatFloat(float64(rec.Confidence), 'f', 4, 32),
		strconv.Itoa(rec.Box.Min.X),
		strconv.Itoa(rec.Box.Min.Y),
		strconv.Itoa(rec.Box.Max.X),
		strconv.Itoa(rec.Box.Max.Y),
	}
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *CSVLogger) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
