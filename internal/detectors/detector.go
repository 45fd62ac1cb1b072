package detectors

import (
	"context"
	"errors"
	"image"
	"strings"

	"github.com/sua-org/cam-guard/internal/config"
	"github.com/sua-org/cam-guard/internal/core"
)

var ErrDetectorNotFound = errors.New("no detector registered for this backend")

// Detector mapeia um quadro para o resultado de detecção de falhas.
//
// Uma instância é criada por decision loop e usada só por ele.
type Detector interface {
	Predict(ctx context.Context, frame image.Image, threshold float64) (core.DetectionResult, error)
	Close() error
}

type DetectorFactory func(cfg config.DetectorConfig) (Detector, error)

var registry = map[string]DetectorFactory{}

// RegisterDetector é chamado no init() de cada backend.
func RegisterDetector(name string, f DetectorFactory) {
	registry[strings.ToLower(strings.TrimSpace(name))] = f
}

// New instancia o detector configurado.
func New(cfg config.DetectorConfig) (Detector, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(cfg.Backend))]
	if !ok {
		return nil, ErrDetectorNotFound
	}
	return f(cfg)
}

// FilterBoxes aplica o mesmo pós-processamento do modelo: fica só com as
// boxes de classe válida e score acima do threshold.
func FilterBoxes(boxes []core.Box, threshold float64) core.DetectionResult {
	out := make([]core.Box, 0, len(boxes))
	for _, b := range boxes {
		if b.ClassID <= -1 || b.Score <= threshold {
			continue
		}
		out = append(out, b)
	}
	return core.DetectionResult{BadCount: len(out), Boxes: out}
}
