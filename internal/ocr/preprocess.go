package ocr

import (
	"image"

	"gocv.io/x/gocv"
)

// Plate crops below this size are upscaled before recognition; small crops
// lose stroke detail that separates D from 0 and O.
const (
	minCropHeight = 20
	minCropWidth  = 60
)

// prepare converts a plate crop to a grayscale image the model can read.
// With enhance set it also runs the contrast/denoise/sharpen chain that helps
// on low-light and motion-blurred crops. The caller owns the returned Mat.
func prepare(crop gocv.Mat, enhance bool) gocv.Mat {
	work := crop.Clone()

	if work.Rows() < minCropHeight || work.Cols() < minCropWidth {
		scale := maxf(float64(minCropHeight)/float64(work.Rows()), float64(minCropWidth)/float64(work.Cols()))
		scaled := gocv.NewMat()
		gocv.Resize(work, &scaled, image.Pt(0, 0), scale, scale, gocv.InterpolationCubic)
		work.Close()
		work = scaled
	}

	gray := gocv.NewMat()
	if work.Channels() > 1 {
		gocv.CvtColor(work, &gray, gocv.ColorBGRToGray)
	} else {
		gray = work.Clone()
	}
	work.Close()

	if !enhance {
		return gray
	}

	denoised := gocv.NewMat()
	gocv.BilateralFilter(gray, &denoised, 5, 50, 50)
	gray.Close()

	kernel := sharpenKernel()
	defer kernel.Close()
	sharpened := gocv.NewMat()
	gocv.Filter2D(denoised, &sharpened, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)
	denoised.Close()

	clahe := gocv.NewCLAHEWithParams(3.0, image.Pt(8, 8))
	defer clahe.Close()
	enhanced := gocv.NewMat()
	clahe.Apply(sharpened, &enhanced)
	sharpened.Close()

	return enhanced
}

func sharpenKernel() gocv.Mat {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			k.SetFloatAt(row, col, -1)
		}
	}
	k.SetFloatAt(1, 1, 9)
	return k
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
