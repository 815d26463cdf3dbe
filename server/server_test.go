package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/history"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/internal/monitoring"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/profiler"
)

type fakeEngine struct {
	mu      sync.Mutex
	outputs []*tensor.Dense
	err     error
}

func (f *fakeEngine) Infer(ctx context.Context, img gocv.Mat) ([]*tensor.Dense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs, f.err
}

func (f *fakeEngine) Close() error { return nil }

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer serves a detector over classes person, car and dog whose
// engine reports two overlapping people and a distant dog.
func newTestServer(t *testing.T, engine *fakeEngine, opts Options) (*Server, *profiler.StageTimer) {
	t.Helper()
	_, restore := monitoring.Capture()
	t.Cleanup(restore)

	if engine.outputs == nil && engine.err == nil {
		engine.outputs = []*tensor.Dense{tensor.New(tensor.WithShape(3, 8), tensor.WithBacking([]float32{
			0.5, 0.5, 0.2, 0.4, 1, 0.9, 0.0, 0.0,
			0.51, 0.5, 0.2, 0.4, 1, 0.8, 0.0, 0.0,
			0.1, 0.1, 0.1, 0.1, 1, 0.0, 0.0, 0.7,
		}))}
	}

	m, err := models.NewModel(model.NewModelArgs{Name: model.ModelNameYOLOv4Tiny})
	require.NoError(t, err)
	d, err := detectors.NewDetector(engine, models.NewCatalog([]string{"person", "car", "dog"}), m, detectors.DefaultConfig())
	require.NoError(t, err)

	timer := profiler.NewStageTimer(0)
	return New(d, timer, opts), timer
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	s, timer := newTestServer(t, &fakeEngine{}, DefaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(pngBytes(t, 200, 100)))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Width)
	assert.Equal(t, 100, resp.Height)
	assert.Equal(t, 3, resp.RawCount)
	require.Len(t, resp.Detections, 2)
	assert.Equal(t, "person", resp.Detections[0].Class)
	assert.Equal(t, float32(0.9), resp.Detections[0].Confidence)
	assert.Equal(t, float32(80), resp.Detections[0].Box.X)
	assert.Equal(t, "dog", resp.Detections[1].Class)
	assert.Contains(t, resp.TimingsMS, "inference")

	_, err := uuid.Parse(resp.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, resp.RequestID, rec.Header().Get(RequestIDHeader))
	assert.Len(t, timer.Stats(), 3)
}

func TestDetect_Multipart(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, DefaultOptions())

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "frame.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 64, 64))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/detect", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	id := uuid.NewString()
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 64, resp.Width)
	assert.Equal(t, id, resp.RequestID)
}

func TestDetect_Errors(t *testing.T) {
	tests := []struct {
		name   string
		engine *fakeEngine
		opts   Options
		body   []byte
		status int
		stage  string
	}{
		{name: "empty body", engine: &fakeEngine{}, opts: DefaultOptions(), body: nil, status: http.StatusBadRequest},
		{name: "not an image", engine: &fakeEngine{}, opts: DefaultOptions(), body: []byte("hello"), status: http.StatusBadRequest},
		{name: "too large", engine: &fakeEngine{}, opts: Options{MaxUploadBytes: 16}, body: pngBytes(t, 32, 32), status: http.StatusRequestEntityTooLarge},
		{
			name:   "inference failure",
			engine: &fakeEngine{err: assert.AnError},
			opts:   DefaultOptions(),
			body:   pngBytes(t, 32, 32),
			status: http.StatusInternalServerError,
			stage:  "inference",
		},
		{
			name: "malformed output",
			engine: &fakeEngine{outputs: []*tensor.Dense{
				tensor.New(tensor.WithShape(1, 6), tensor.WithBacking([]float32{0.5, 0.5, 0.1, 0.1, 1, 0.9})),
			}},
			opts:   DefaultOptions(),
			body:   pngBytes(t, 32, 32),
			status: http.StatusInternalServerError,
			stage:  "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.engine, tt.opts)

			req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
			assert.Equal(t, tt.stage, resp.Stage)
		})
	}
}

func TestAnnotate(t *testing.T) {
	s, timer := newTestServer(t, &fakeEngine{}, DefaultOptions())

	req := httptest.NewRequest(http.MethodPost, "/annotate", bytes.NewReader(pngBytes(t, 200, 100)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Detections"))

	out, err := gocv.IMDecode(rec.Body.Bytes(), gocv.IMReadColor)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, 200, out.Cols())
	assert.Equal(t, 100, out.Rows())

	var names []string
	for _, st := range timer.Stats() {
		names = append(names, st.Name)
	}
	assert.Contains(t, names, "annotate")
}

func TestHealthAndStats(t *testing.T) {
	s, timer := newTestServer(t, &fakeEngine{}, DefaultOptions())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "yolov4-tiny", health["model"])
	assert.Equal(t, float64(3), health["classes"])

	timer.Record("decode", 1000)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Operations []profiler.OperationStats `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats.Operations, 1)
	assert.Equal(t, "decode", stats.Operations[0].Name)
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(\"detect\")"), 0o644))

	opts := DefaultOptions()
	opts.StaticDir = dir
	s, _ := newTestServer(t, &fakeEngine{}, opts)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "detect")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConcurrentRequests(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, DefaultOptions())
	body := pngBytes(t, 120, 80)

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body)))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	opts := DefaultOptions()
	opts.History = store
	s, _ := newTestServer(t, &fakeEngine{}, opts)

	req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(pngBytes(t, 200, 100)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(RequestIDHeader)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Requests    []history.Record `json:"requests"`
		ClassCounts map[string]int   `json:"class_counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Requests, 1)
	assert.Equal(t, id, resp.Requests[0].RequestID)
	assert.Len(t, resp.Requests[0].Detections, 2)
	assert.Equal(t, map[string]int{"person": 1, "dog": 1}, resp.ClassCounts)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_Disabled(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, DefaultOptions())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnotate_Format(t *testing.T) {
	s, _ := newTestServer(t, &fakeEngine{}, DefaultOptions())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/annotate?format=png", bytes.NewReader(pngBytes(t, 64, 48))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	decoded, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), decoded.Bounds())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/annotate?format=gif", bytes.NewReader(pngBytes(t, 64, 48))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
