// internal/handlers/local.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sua-org/cam-guard/internal/core"
)

const (
	LastImageFile  = "last_bad_image.jpg"
	LastResultFile = "last_bad_result.json"
	jpegQuality    = 95
)

// LocalHandler guarda o último quadro ruim (anotado) e o resultado em disco.
// Cada disparo sobrescreve o anterior.
type LocalHandler struct {
	dir    string
	labels []string
}

func NewLocalHandler(dir string, labels []string) *LocalHandler {
	if dir == "" {
		dir = "."
	}
	return &LocalHandler{dir: dir, labels: labels}
}

type localRecord struct {
	OccurredAt time.Time `json:"occurred_at"`
	core.DetectionResult
}

func (h *LocalHandler) Handle(_ context.Context, frame image.Image, result core.DetectionResult) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	img, err := encodeJPEG(Annotate(frame, result.Boxes, h.labels), jpegQuality)
	if err != nil {
		return err
	}
	imgPath := filepath.Join(h.dir, LastImageFile)
	if err := writeFileAtomic(imgPath, img); err != nil {
		return fmt.Errorf("write %s: %w", LastImageFile, err)
	}

	rec, err := json.MarshalIndent(localRecord{OccurredAt: time.Now(), DetectionResult: result}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(h.dir, LastResultFile), rec); err != nil {
		return fmt.Errorf("write %s: %w", LastResultFile, err)
	}

	log.Printf("[handler:local] último quadro ruim salvo em %s (%d regiões)", imgPath, result.BadCount)
	return nil
}

// writeFileAtomic escreve num temporário e renomeia; quem lê o arquivo nunca
// vê um jpg pela metade.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
