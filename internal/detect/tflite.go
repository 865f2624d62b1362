package detect

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/mattn/go-tflite"
	"gocv.io/x/gocv"
)

// outputDecoder turns a model family's raw output tensors into candidate
// boxes, scores and class ids, before non-maximum suppression.
type outputDecoder interface {
	decode(interp *tflite.Interpreter, scoreTh float32, width, height float32) ([]image.Rectangle, []float32, []int)
}

// TFLiteDetector runs a tflite object-detection model. It is not safe for
// concurrent Detect calls; pipeline.Inference serializes all callers.
type TFLiteDetector struct {
	model   *tflite.Model
	interp  *tflite.Interpreter
	options *tflite.InterpreterOptions
	labels  []string
	decoder outputDecoder
	scoreTh float32
	nmsTh   float32
}

// Options configures NewTFLiteDetector.
type Options struct {
	ModelPath string
	LabelPath string
	Kind      string // "yolo" or "ssd"
	ScoreTh   float32
	NMSTh     float32
	Threads   int
}

// NewTFLiteDetector loads the model and allocates its tensors.
func NewTFLiteDetector(opts Options) (*TFLiteDetector, error) {
	labels, err := loadLabels(opts.LabelPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	model := tflite.NewModelFromFile(opts.ModelPath)
	if model == nil {
		return nil, fmt.Errorf("cannot load model %s", opts.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	threads := opts.Threads
	if threads < 1 {
		threads = 4
	}
	options.SetNumThread(threads)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("cannot create interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.New("allocate tensors failed")
	}

	var decoder outputDecoder
	switch opts.Kind {
	case "ssd":
		decoder = ssdDecoder{}
	default:
		decoder = yoloDecoder{}
	}

	return &TFLiteDetector{
		model:   model,
		interp:  interp,
		options: options,
		labels:  labels,
		decoder: decoder,
		scoreTh: opts.ScoreTh,
		nmsTh:   opts.NMSTh,
	}, nil
}

// Detect runs one inference pass and returns NMS-filtered detections.
func (d *TFLiteDetector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	input := d.interp.GetInputTensor(0)
	fillInput(input, img)

	if status := d.interp.Invoke(); status != tflite.OK {
		return nil, errors.New("interpreter invoke failed")
	}

	bboxes, confidences, classes := d.decoder.decode(d.interp, d.scoreTh, float32(img.Cols()), float32(img.Rows()))
	if len(bboxes) == 0 {
		return nil, nil
	}

	indices := make([]int, len(bboxes))
	for i := range indices {
		indices[i] = -1
	}
	gocv.NMSBoxes(bboxes, confidences, d.scoreTh, d.nmsTh, indices)

	var items []Detection
	for _, idx := range indices {
		if idx < 0 {
			continue
		}
		items = append(items, Detection{
			Box:     bboxes[idx],
			ClassID: classes[idx],
			Label:   label(d.labels, classes[idx]),
			Score:   confidences[idx],
		})
	}
	return items, nil
}

func (d *TFLiteDetector) Close() error {
	d.interp.Delete()
	d.options.Delete()
	d.model.Delete()
	return nil
}

// fillInput resizes the frame to the tensor's wanted shape and writes it in
// the layout the model expects.
func fillInput(input *tflite.Tensor, img gocv.Mat) {
	wantedHeight := input.Dim(1)
	wantedWidth := input.Dim(2)
	resized := gocv.NewMat()
	defer resized.Close()
	switch input.Type() {
	case tflite.UInt8:
		gocv.Resize(img, &resized, image.Pt(wantedWidth, wantedHeight), 0, 0, gocv.InterpolationDefault)
		if v, err := resized.DataPtrUint8(); err == nil {
			copy(input.UInt8s(), v)
		}
	case tflite.Float32:
		img.ConvertTo(&resized, gocv.MatTypeCV32F)
		gocv.Resize(resized, &resized, image.Pt(wantedWidth, wantedHeight), 0, 0, gocv.InterpolationDefault)
		if v, err := resized.DataPtrFloat32(); err == nil {
			for i := 0; i < len(v); i++ {
				v[i] = v[i] / 255.0
			}
			input.SetFloat32s(v)
		}
	}
}

func tensorValues(output *tflite.Tensor) []float32 {
	var loc []float32
	switch output.Type() {
	case tflite.UInt8:
		f := output.UInt8s()
		loc = make([]float32, len(f))
		for i, v := range f {
			loc[i] = float32(v) / 255
		}
	case tflite.Float32:
		f := output.Float32s()
		loc = make([]float32, len(f))
		copy(loc, f)
	}
	return loc
}

func label(labels []string, class int) string {
	if class >= 0 && class < len(labels) {
		return labels[class]
	}
	return "unknown"
}

func loadLabels(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	labels := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, scanner.Text())
	}
	return labels, scanner.Err()
}
