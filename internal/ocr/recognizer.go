// Package ocr wraps the TensorFlow Lite text-recognition model used to read
// license plates from cropped vehicle regions.
package ocr

import (
	"errors"
	"fmt"
	"image"

	"github.com/mattn/go-tflite"
	"gocv.io/x/gocv"
)

// Charset is the alphabet the CRNN model emits; index 0 is the CTC blank.
const Charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Recognizer converts a cropped plate region into raw text and a confidence
// score. A failure is treated by callers as "no candidate for this region".
type Recognizer interface {
	Recognize(crop gocv.Mat) (string, float32, error)
	Close() error
}

// TFLiteRecognizer runs a CRNN-style tflite model over a 160x32 grayscale
// input. Not safe for concurrent Recognize calls.
type TFLiteRecognizer struct {
	model   *tflite.Model
	interp  *tflite.Interpreter
	options *tflite.InterpreterOptions

	inputWidth  int
	inputHeight int
	minLength   int
	minScore    float32
	enhance     bool
}

// Options configures NewTFLiteRecognizer.
type Options struct {
	ModelPath string
	MinLength int     // shorter reads are discarded as noise
	MinScore  float32 // lower-confidence reads are discarded
	Enhance   bool    // run the contrast/denoise/sharpen chain before OCR
}

func NewTFLiteRecognizer(opts Options) (*TFLiteRecognizer, error) {
	model := tflite.NewModelFromFile(opts.ModelPath)
	if model == nil {
		return nil, fmt.Errorf("cannot load model %s", opts.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(2)

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

	// Input is [1,1,H,W] for channel-first exports, [1,H,W,1] otherwise.
	input := interp.GetInputTensor(0)
	h, w := input.Dim(1), input.Dim(2)
	if h == 1 {
		h, w = input.Dim(2), input.Dim(3)
	}
	return &TFLiteRecognizer{
		model:       model,
		interp:      interp,
		options:     options,
		inputHeight: h,
		inputWidth:  w,
		minLength:   opts.MinLength,
		minScore:    opts.MinScore,
		enhance:     opts.Enhance,
	}, nil
}

// Recognize reads the text in a plate crop. An empty string with a nil error
// means the region produced no plausible plate text.
func (r *TFLiteRecognizer) Recognize(crop gocv.Mat) (string, float32, error) {
	if crop.Empty() {
		return "", 0, errors.New("empty crop")
	}

	prepared := prepare(crop, r.enhance)
	defer prepared.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(prepared, &resized, image.Pt(r.inputWidth, r.inputHeight), 0, 0, gocv.InterpolationLinear)

	normalized := gocv.NewMat()
	defer normalized.Close()
	resized.ConvertTo(&normalized, gocv.MatTypeCV32F)

	v, err := normalized.DataPtrFloat32()
	if err != nil {
		return "", 0, fmt.Errorf("read pixel data: %w", err)
	}
	buf := make([]float32, len(v))
	for i := range v {
		buf[i] = (v[i]/255.0 - 0.5) / 0.5
	}

	input := r.interp.GetInputTensor(0)
	input.SetFloat32s(buf)

	if status := r.interp.Invoke(); status != tflite.OK {
		return "", 0, errors.New("interpreter invoke failed")
	}

	output := r.interp.GetOutputTensor(0)
	steps := output.Dim(1)
	classes := output.Dim(2)
	logits := output.Float32s()

	text, conf := DecodeCTC(logits, steps, classes, Charset)
	if len(text) < r.minLength || conf < r.minScore {
		return "", 0, nil
	}
	return text, conf, nil
}

func (r *TFLiteRecognizer) Close() error {
	r.interp.Delete()
	r.options.Delete()
	r.model.Delete()
	return nil
}
