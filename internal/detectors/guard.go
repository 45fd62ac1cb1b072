package detectors

import (
	"context"
	"fmt"
	"image"
	"log"
	"runtime/debug"
	"time"

	"github.com/sua-org/cam-guard/internal/core"
)

// guarded aplica timeout por chamada e protege contra panic do backend,
// para que um modelo quebrado derrube só o tick e não o processo.
type guarded struct {
	inner   Detector
	timeout time.Duration
}

// Guard embrulha d com timeout por Predict e recover.
func Guard(d Detector, timeout time.Duration) Detector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &guarded{inner: d, timeout: timeout}
}

func (g *guarded) Predict(ctx context.Context, frame image.Image, threshold float64) (res core.DetectionResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[detector] panic no predict: %v\n%s", r, string(debug.Stack()))
			res = core.DetectionResult{}
			err = fmt.Errorf("panic in detector: %v", r)
		}
	}()
	return g.inner.Predict(ctx, frame, threshold)
}

func (g *guarded) Close() error {
	return g.inner.Close()
}
