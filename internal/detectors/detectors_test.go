package detectors

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sua-org/cam-guard/internal/config"
	"github.com/sua-org/cam-guard/internal/core"
)

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 24))
}

func newInferenceServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.3", r.FormValue("threshold"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		_, err = jpeg.Decode(f)
		require.NoError(t, err, "frame must be sent as JPEG")

		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDetectorFiltersBoxes(t *testing.T) {
	srv := newInferenceServer(t, `{"boxes": [
		[0, 0.91, 1, 2, 10, 12],
		[0, 0.20, 1, 2, 10, 12],
		[-1, 0.99, 0, 0, 1, 1],
		[0, 0.30, 3, 3, 4, 4]
	]}`, http.StatusOK)

	d := NewHTTPDetector(srv.URL + "/predict")
	defer d.Close()

	res, err := d.Predict(context.Background(), testFrame(), 0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, res.BadCount)
	require.Len(t, res.Boxes, 1)
	assert.Equal(t, core.Box{ClassID: 0, Score: 0.91, XMin: 1, YMin: 2, XMax: 10, YMax: 12}, res.Boxes[0])
}

func TestHTTPDetectorErrorStatus(t *testing.T) {
	srv := newInferenceServer(t, "model not loaded", http.StatusServiceUnavailable)
	d := NewHTTPDetector(srv.URL + "/predict")

	_, err := d.Predict(context.Background(), testFrame(), 0.3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPDetectorMalformedBox(t *testing.T) {
	srv := newInferenceServer(t, `{"boxes": [[0, 0.9]]}`, http.StatusOK)
	d := NewHTTPDetector(srv.URL + "/predict")

	_, err := d.Predict(context.Background(), testFrame(), 0.3)
	require.Error(t, err)
}

func TestNewHTTPChecksHealth(t *testing.T) {
	srv := newInferenceServer(t, `{"boxes": []}`, http.StatusOK)
	d, err := New(config.DetectorConfig{Backend: "http", URL: srv.URL + "/predict"})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	down := httptest.NewServer(http.NotFoundHandler())
	defer down.Close()
	_, err = New(config.DetectorConfig{Backend: "http", URL: down.URL + "/predict"})
	require.Error(t, err)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(config.DetectorConfig{Backend: "paddle"})
	assert.ErrorIs(t, err, ErrDetectorNotFound)
}

type funcDetector func(ctx context.Context) (core.DetectionResult, error)

func (f funcDetector) Predict(ctx context.Context, _ image.Image, _ float64) (core.DetectionResult, error) {
	return f(ctx)
}

func (f funcDetector) Close() error { return nil }

func TestGuardRecoversPanic(t *testing.T) {
	d := Guard(funcDetector(func(context.Context) (core.DetectionResult, error) {
		panic("tensor shape mismatch")
	}), time.Second)

	_, err := d.Predict(context.Background(), testFrame(), 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tensor shape mismatch")
}

func TestGuardAppliesTimeout(t *testing.T) {
	d := Guard(funcDetector(func(ctx context.Context) (core.DetectionResult, error) {
		<-ctx.Done()
		return core.DetectionResult{}, ctx.Err()
	}), 20*time.Millisecond)

	start := time.Now()
	_, err := d.Predict(context.Background(), testFrame(), 0.5)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFilterBoxes(t *testing.T) {
	res := FilterBoxes([]core.Box{
		{ClassID: 0, Score: 0.5},
		{ClassID: 0, Score: 0.03},
		{ClassID: -1, Score: 0.9},
	}, 0.03)
	assert.Equal(t, 1, res.BadCount)
}
