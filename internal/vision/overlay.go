package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/plate"
)

var (
	boxColor     = color.RGBA{0, 255, 0, 0}
	invalidColor = color.RGBA{0, 165, 255, 0}
	textColor    = color.RGBA{255, 255, 255, 0}
)

// DrawRecords returns a copy of the frame with each record's bounding box and
// text drawn on it. The input frame is not modified; the caller owns the
// returned Mat.
func DrawRecords(img gocv.Mat, records []plate.Record) gocv.Mat {
	out := img.Clone()
	for _, rec := range records {
		c := boxColor
		if !rec.Valid {
			c = invalidColor
		}
		gocv.Rectangle(&out, rec.Box, c, 2)
		label := fmt.Sprintf("%s %.2f", rec.Text, rec.Confidence)
		origin := image.Pt(rec.Box.Min.X, rec.Box.Min.Y-6)
		if origin.Y < 12 {
			origin.Y = rec.Box.Max.Y + 16
		}
		gocv.PutText(&out, label, origin, gocv.FontHersheySimplex, 0.6, textColor, 2)
	}
	return out
}

// Display shows annotated frames in a window.
type Display struct {
	window *gocv.Window
}

func NewDisplay(title string) *Display {
	return &Display{window: gocv.NewWindow(title)}
}

// Show renders one frame and pumps the UI event loop. It returns false when
// the user asked to quit (ESC).
func (d *Display) Show(img gocv.Mat) bool {
	d.window.IMShow(img)
	return d.window.WaitKey(1) != 27
}

func (d *Display) Close() error {
	return d.window.Close()
}
