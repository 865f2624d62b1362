// Package detect wraps the TensorFlow Lite vehicle detector behind a small
// capability interface so the pipeline and the HTTP service never see tensors.
package detect

import (
	"image"

	"gocv.io/x/gocv"
)

// Detection is one object found in a frame. Ephemeral, never persisted.
type Detection struct {
	Box     image.Rectangle `json:"box"`
	ClassID int             `json:"class_id"`
	Label   string          `json:"label"`
	Score   float32         `json:"score"`
}

// Detector locates objects in a frame. A failed call is treated by callers as
// "zero detections for this frame".
type Detector interface {
	Detect(img gocv.Mat) ([]Detection, error)
	Close() error
}

// PlateRegion returns the sub-rectangle of a vehicle detection that is likely
// to contain the license plate: the lower quarter of a car box, the full box
// for a motorcycle (plates sit high on two-wheelers). The result is clamped
// to the frame bounds and empty when the detection lies outside them.
func PlateRegion(d Detection, bounds image.Rectangle, motorcycleID int) image.Rectangle {
	box := d.Box
	if d.ClassID != motorcycleID {
		box.Min.Y = box.Min.Y + (box.Dy()*3)/4
	}
	return box.Intersect(bounds)
}

// IsVehicle reports whether the class id is one of the configured vehicle
// classes (COCO car=2, motorcycle=3 by default).
func IsVehicle(classID int, vehicleIDs []int) bool {
	for _, id := range vehicleIDs {
		if classID == id {
			return true
		}
	}
	return false
}

func argmax(f []float32) (int, float32) {
	r, m := 0, f[0]
	for i, v := range f {
		if v > m {
			m = v
			r = i
		}
	}
	return r, m
}
