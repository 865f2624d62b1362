package detect

import (
	"image"
	"math"

	"github.com/mattn/go-tflite"
)

// yoloDecoder handles YOLO-family outputs: either a single [1, N, 5+classes]
// tensor of box rows, or a [1, gy, gx, anchors] grid.
type yoloDecoder struct{}

func (y yoloDecoder) decode(interp *tflite.Interpreter, scoreTh float32, width, height float32) ([]image.Rectangle, []float32, []int) {
	bboxes := []image.Rectangle{}
	confidences := []float32{}
	classes := []int{}
	for idx := 0; idx < interp.GetOutputTensorCount(); idx++ {
		b, c, k := y.decodeTensor(interp.GetOutputTensor(idx), scoreTh, width, height)
		bboxes = append(bboxes, b...)
		confidences = append(confidences, c...)
		classes = append(classes, k...)
	}
	return bboxes, confidences, classes
}

func (y yoloDecoder) decodeTensor(output *tflite.Tensor, scoreTh float32, width, height float32) ([]image.Rectangle, []float32, []int) {
	loc := tensorValues(output)

	bboxes := []image.Rectangle{}
	confidences := []float32{}
	classes := []int{}
	if len(loc) == 0 {
		return bboxes, confidences, classes
	}

	if output.NumDims() == 3 {
		stride := output.Dim(2)
		if stride < 6 {
			return bboxes, confidences, classes
		}
		totalSize := 1
		for idx := 0; idx < output.NumDims(); idx++ {
			totalSize *= output.Dim(idx)
		}
		for idx := 0; idx+stride <= totalSize; idx += stride {
			if loc[idx+4] > scoreTh {
				x := int(loc[idx+0] * width)
				y := int(loc[idx+1] * height)
				w := int(loc[idx+2] * width)
				h := int(loc[idx+3] * height)
				bboxes = append(bboxes, image.Rect(x-w/2, y-h/2, x+w/2, y+h/2))
				classID, score := argmax(loc[idx+5 : idx+stride])
				confidences = append(confidences, score)
				classes = append(classes, classID)
			}
		}
	} else if output.NumDims() == 4 {
		stride := output.Dim(output.NumDims() - 1)
		if stride < 6 {
			return bboxes, confidences, classes
		}
		sx := width / float32(output.Dim(1))
		sy := height / float32(output.Dim(2))
		for i := 0; i < output.Dim(1); i++ {
			for j := 0; j < output.Dim(2); j++ {
				idx := (i*output.Dim(2) + j) * stride
				if loc[idx+4] > scoreTh {
					dx := float32(10.0)
					dy := float32(13.0)
					x := sx*float32(j) + sx*loc[idx+0]
					y := sy*float32(i) + sy*loc[idx+1]
					w := sx * float32(math.Log(float64(dx*float32(math.Exp(float64(loc[idx+2]))))))
					h := sy * float32(math.Log(float64(dy*float32(math.Exp(float64(loc[idx+3]))))))
					bboxes = append(bboxes, image.Rect(int(x-w/2), int(y-h/2), int(x+w/2), int(y+h/2)))
					classID, score := argmax(loc[idx+5 : idx+stride])
					confidences = append(confidences, score)
					classes = append(classes, classID)
				}
			}
		}
	}

	return bboxes, confidences, classes
}
