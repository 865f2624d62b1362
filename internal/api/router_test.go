package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/krishnanrx/parkwise/internal/detect"
	"github.com/krishnanrx/parkwise/internal/pipeline"
	"github.com/krishnanrx/parkwise/internal/plate"
)

type stubDetector struct{}

func (stubDetector) Detect(img gocv.Mat) ([]detect.Detection, error) {
	return []detect.Detection{
		{Box: image.Rect(10, 10, 90, 90), ClassID: 2, Label: "car", Score: 0.95},
	}, nil
}

func (stubDetector) Close() error { return nil }

type stubRecognizer struct{}

func (stubRecognizer) Recognize(crop gocv.Mat) (string, float32, error) {
	return "MHO4GJ7806", 0.9, nil
}

func (stubRecognizer) Close() error { return nil }

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()
	stats := pipeline.NewStats("test")
	inf := pipeline.NewInference(stubDetector{}, stubRecognizer{}, []int{2, 3}, 3, stats, log)
	post := plate.NewPostprocessor([]string{"LLDDLLDDDD"}, map[string]string{"O": "0"}, time.Second, false, log)
	return NewRouter(NewRecognizeService(inf, post), stats, "")
}

func encodeTestImage(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(".png", img)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out
}

func TestRecognizeRawBody(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", bytes.NewReader(encodeTestImage(t)))
	req.Header.Set("Content-Type", "image/png")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp recognizeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(resp.Records))
	}
	if resp.Records[0].Text != "MH04GJ7806" {
		t.Errorf("plate = %q, want confusion-corrected MH04GJ7806", resp.Records[0].Text)
	}
}

func TestRecognizeBase64JSON(t *testing.T) {
	r := testRouter(t)

	body, _ := json.Marshal(recognizeRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(encodeTestImage(t)),
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRecognizeRejectsGarbage(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", strings.NewReader("not an image"))
	req.Header.Set("Content-Type", "application/octet-stream")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report pipeline.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.RunID != "test" {
		t.Errorf("run_id = %q", report.RunID)
	}
}
