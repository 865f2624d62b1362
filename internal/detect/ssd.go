package detect

import (
	"image"

	"github.com/mattn/go-tflite"
)

// ssdDecoder handles SSD-family outputs: separate location, class and score
// tensors with normalized box coordinates.
type ssdDecoder struct{}

func (p ssdDecoder) decode(interp *tflite.Interpreter, scoreTh float32, width, height float32) ([]image.Rectangle, []float32, []int) {
	bboxes := []image.Rectangle{}
	confidences := []float32{}
	classes := []int{}

	if interp.GetOutputTensorCount() > 2 {
		l := copySlice(interp.GetOutputTensor(0).Float32s())
		c := copySlice(interp.GetOutputTensor(1).Float32s())
		s := copySlice(interp.GetOutputTensor(2).Float32s())
		for idx := 0; 4*idx < len(l) && idx < len(c) && idx < len(s); idx++ {
			if s[idx] <= scoreTh {
				continue
			}
			bboxes = append(bboxes, image.Rectangle{
				Min: image.Point{X: int(l[4*idx] * width), Y: int(l[4*idx+1] * height)},
				Max: image.Point{X: int(l[4*idx+2] * width), Y: int(l[4*idx+3] * height)},
			})
			confidences = append(confidences, s[idx])
			classes = append(classes, int(c[idx]))
		}
	}

	return bboxes, confidences, classes
}

func copySlice(f []float32) []float32 {
	ff := make([]float32, len(f))
	copy(ff, f)
	return ff
}
