package ocr

import "math"

// DecodeCTC greedily decodes CTC logits of shape [steps, classes] where class
// 0 is the blank token and class i+1 maps to charset[i]. It collapses repeats,
// drops blanks and returns the mean per-character probability as confidence.
func DecodeCTC(logits []float32, steps, classes int, charset string) (string, float32) {
	if steps <= 0 || classes <= 1 || len(logits) < steps*classes {
		return "", 0
	}

	out := make([]byte, 0, steps)
	var sum float64
	prev := -1
	for t := 0; t < steps; t++ {
		row := logits[t*classes : (t+1)*classes]
		best, prob := softmaxArgmax(row)
		if best != prev && best != 0 {
			if best-1 < len(charset) {
				out = append(out, charset[best-1])
				sum += prob
			}
		}
		prev = best
	}
	if len(out) == 0 {
		return "", 0
	}
	return string(out), float32(sum / float64(len(out)))
}

func softmaxArgmax(row []float32) (int, float64) {
	best, max := 0, row[0]
	for i, v := range row {
		if v > max {
			max = v
			best = i
		}
	}
	var denom float64
	for _, v := range row {
		denom += math.Exp(float64(v - max))
	}
	return best, 1.0 / denom
}
