package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/history"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/internal/monitoring"
	"github.com/nvr-ai/go-detect/render"
)

// Detection is one detection in a /detect response.
type Detection = history.Detection

// DetectResponse is the /detect response body.
type DetectResponse struct {
	RequestID  string             `json:"request_id"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	RawCount   int                `json:"raw_count"`
	Detections []Detection        `json:"detections"`
	TimingsMS  map[string]float64 `json:"timings_ms"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
}

// httpError pairs an error with the status it is reported as.
type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }

func (s *Server) handleDetect(c *gin.Context) {
	img, dets, err := s.detect(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer img.Close()

	resp := DetectResponse{
		RequestID:  c.GetString(requestIDKey),
		Width:      dets.Width,
		Height:     dets.Height,
		RawCount:   dets.RawCount,
		Detections: s.detections(dets),
		TimingsMS:  make(map[string]float64, len(dets.Timings)),
	}
	for stage, d := range dets.Timings {
		resp.TimingsMS[string(stage)] = float64(d) / float64(time.Millisecond)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnnotate(c *gin.Context) {
	format, err := images.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, &httpError{status: http.StatusBadRequest, err: err})
		return
	}

	img, dets, err := s.detect(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer img.Close()

	stop := s.timer.StartOperation("annotate")
	err = render.Annotate(&img, dets.Candidates, s.detector.Catalog(), s.opts.Palette, s.opts.Style)
	stop()
	if err != nil {
		s.fail(c, err)
		return
	}

	var buf *gocv.NativeByteBuffer
	if params := format.EncodeParams(s.opts.JPEGQuality); params != nil {
		buf, err = gocv.IMEncodeWithParams(format.FileExt(), img, params)
	} else {
		buf, err = gocv.IMEncode(format.FileExt(), img)
	}
	if err != nil {
		s.fail(c, fmt.Errorf("failed to encode image: %w", err))
		return
	}
	defer buf.Close()

	c.Header("X-Detections", fmt.Sprint(len(dets.Candidates)))
	c.Data(http.StatusOK, format.ContentType(), buf.GetBytes())
}

func (s *Server) handleHealth(c *gin.Context) {
	opts := s.detector.Model().Options()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"model":   opts.Name,
		"input":   []int{opts.InputShape.X, opts.InputShape.Y},
		"classes": s.detector.Catalog().Len(),
		"uptime":  time.Since(s.started).Truncate(time.Second).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.timer.Stats()
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{"operations": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": stats})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := history.DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(c, &httpError{status: http.StatusBadRequest, err: fmt.Errorf("invalid limit %q", v)})
			return
		}
		limit = n
	}

	records, err := s.opts.History.Recent(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	counts, err := s.opts.History.ClassCounts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": records, "class_counts": counts})
}

// detect decodes the uploaded image and runs the detector over it. The
// caller owns the returned Mat.
func (s *Server) detect(c *gin.Context) (gocv.Mat, *detectors.Detections, error) {
	img, err := s.readImage(c)
	if err != nil {
		return gocv.Mat{}, nil, err
	}

	dets, err := s.detector.Detect(c.Request.Context(), img)
	if err != nil {
		img.Close()
		return gocv.Mat{}, nil, err
	}

	s.record(c, dets)
	return img, dets, nil
}

// record logs the request to the history store. Failures are logged, not
// returned: the detections are still served.
func (s *Server) record(c *gin.Context, dets *detectors.Detections) {
	if s.opts.History == nil {
		return
	}

	err := s.opts.History.Record(c.Request.Context(), history.Record{
		RequestID:  c.GetString(requestIDKey),
		Time:       time.Now(),
		Width:      dets.Width,
		Height:     dets.Height,
		RawCount:   dets.RawCount,
		Detections: s.detections(dets),
	})
	if err != nil {
		monitoring.Logf("failed to record history for %s: %v", c.GetString(requestIDKey), err)
	}
}

// detections names every surviving candidate.
func (s *Server) detections(dets *detectors.Detections) []Detection {
	catalog := s.detector.Catalog()
	out := make([]Detection, 0, len(dets.Candidates))
	for _, cand := range dets.Candidates {
		out = append(out, Detection{
			ClassID:    cand.ClassID,
			Class:      catalog.Name(cand.ClassID),
			Confidence: cand.Confidence,
			Box:        cand.Box,
		})
	}
	return out
}

// readImage accepts either a raw image body or a multipart form with an
// "image" file field. EXIF orientation is applied before detection.
func (s *Server) readImage(c *gin.Context) (gocv.Mat, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	var src io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("image")
		if err != nil {
			return gocv.Mat{}, uploadError(err)
		}
		f, err := header.Open()
		if err != nil {
			return gocv.Mat{}, uploadError(err)
		}
		defer f.Close()
		src = f
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return gocv.Mat{}, uploadError(err)
	}
	if len(data) == 0 {
		return gocv.Mat{}, &httpError{status: http.StatusBadRequest, err: errors.New("request contains no image")}
	}

	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return gocv.Mat{}, &httpError{status: http.StatusBadRequest, err: fmt.Errorf("failed to decode image: %w", err)}
	}

	mat, err := gocv.ImageToMatRGB(decoded)
	if err != nil {
		return gocv.Mat{}, &httpError{status: http.StatusBadRequest, err: fmt.Errorf("failed to convert image: %w", err)}
	}
	return mat, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &httpError{status: http.StatusRequestEntityTooLarge, err: err}
	}
	return &httpError{status: http.StatusBadRequest, err: err}
}

// fail writes err as JSON with the status it maps to.
func (s *Server) fail(c *gin.Context, err error) {
	resp := ErrorResponse{RequestID: c.GetString(requestIDKey), Error: err.Error()}
	status := http.StatusInternalServerError

	var he *httpError
	var se *detectors.StageError
	switch {
	case errors.As(err, &he):
		status = he.status
	case errors.As(err, &se):
		resp.Stage = string(se.Stage)
		if ctxErr := c.Request.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			status = http.StatusServiceUnavailable
		}
	}

	c.AbortWithStatusJSON(status, resp)
}
