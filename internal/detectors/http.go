// internal/detectors/http.go
package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/sua-org/cam-guard/internal/config"
	"github.com/sua-org/cam-guard/internal/core"
)

const healthTimeout = 5 * time.Second

// HTTPDetector envia o quadro em JPEG para um serviço de inferência externo.
//
// Resposta esperada:
//
//	{"boxes": [[class_id, score, xmin, ymin, xmax, ymax], ...]}
type HTTPDetector struct {
	url    string
	client *http.Client
}

func init() {
	RegisterDetector("http", func(cfg config.DetectorConfig) (Detector, error) {
		d := NewHTTPDetector(cfg.URL)
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		if err := d.CheckHealth(ctx); err != nil {
			return nil, fmt.Errorf("inference service %s: %w", cfg.URL, err)
		}
		return d, nil
	})
}

func NewHTTPDetector(endpoint string) *HTTPDetector {
	// o timeout vem do ctx (Guard); o client fica sem timeout próprio
	return &HTTPDetector{url: endpoint, client: &http.Client{}}
}

type predictResponse struct {
	Boxes [][]float64 `json:"boxes"`
}

func (d *HTTPDetector) Predict(ctx context.Context, frame image.Image, threshold float64) (core.DetectionResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return core.DetectionResult{}, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, frame, &jpeg.Options{Quality: 90}); err != nil {
		return core.DetectionResult{}, fmt.Errorf("encode frame: %w", err)
	}
	if err := writer.WriteField("threshold", fmt.Sprintf("%g", threshold)); err != nil {
		return core.DetectionResult{}, fmt.Errorf("write threshold: %w", err)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return core.DetectionResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return core.DetectionResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.DetectionResult{}, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, string(b))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return core.DetectionResult{}, fmt.Errorf("decode response: %w", err)
	}

	boxes := make([]core.Box, 0, len(out.Boxes))
	for i, b := range out.Boxes {
		if len(b) < 6 {
			return core.DetectionResult{}, fmt.Errorf("box %d malformada: %v", i, b)
		}
		boxes = append(boxes, core.Box{
			ClassID: int(b[0]),
			Score:   b[1],
			XMin:    b[2],
			YMin:    b[3],
			XMax:    b[4],
			YMax:    b[5],
		})
	}
	return FilterBoxes(boxes, threshold), nil
}

// CheckHealth consulta /health no mesmo diretório do endpoint de predict
// (http://host:8000/predict -> http://host:8000/health).
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(d.url)
	if err != nil {
		return fmt.Errorf("parse detector url: %w", err)
	}
	u.Path = path.Join(path.Dir(u.Path), "health")
	u.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
