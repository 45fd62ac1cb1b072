package opencv

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"gocv.io/x/gocv"

	"github.com/sua-org/cam-guard/internal/config"
	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/detectors"
)

func init() {
	detectors.RegisterDetector("opencv", func(cfg config.DetectorConfig) (detectors.Detector, error) {
		return NewDNNDetector(cfg.Model, cfg.ModelConfig, cfg.InputSize)
	})
}

// DNNDetector roda um modelo de detecção com saída estilo SSD
// ([image_id, class_id, score, x1, y1, x2, y2] normalizados) no próprio
// dispositivo.
type DNNDetector struct {
	mu   sync.Mutex
	net  gocv.Net
	size int
}

func NewDNNDetector(model, cfgFile string, inputSize int) (*DNNDetector, error) {
	net := gocv.ReadNet(model, cfgFile)
	if net.Empty() {
		return nil, fmt.Errorf("não foi possível carregar o modelo %s", model)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	if inputSize <= 0 {
		inputSize = 608
	}
	log.Printf("[detector] modelo %s carregado (entrada %dx%d)", model, inputSize, inputSize)
	return &DNNDetector{net: net, size: inputSize}, nil
}

func (d *DNNDetector) Predict(ctx context.Context, frame image.Image, threshold float64) (core.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return core.DetectionResult{}, err
	}

	img, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return core.DetectionResult{}, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(d.size, d.size), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	w := float64(img.Cols())
	h := float64(img.Rows())
	var boxes []core.Box
	for i := 0; i+6 < out.Total(); i += 7 {
		boxes = append(boxes, core.Box{
			ClassID: int(out.GetFloatAt(0, i+1)),
			Score:   float64(out.GetFloatAt(0, i+2)),
			XMin:    float64(out.GetFloatAt(0, i+3)) * w,
			YMin:    float64(out.GetFloatAt(0, i+4)) * h,
			XMax:    float64(out.GetFloatAt(0, i+5)) * w,
			YMax:    float64(out.GetFloatAt(0, i+6)) * h,
		})
	}
	return detectors.FilterBoxes(boxes, threshold), nil
}

func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
