// internal/handlers/handler.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/sua-org/cam-guard/internal/core"
)

// Handler recebe o último quadro ruim quando o limite de eventos é atingido.
type Handler interface {
	Handle(ctx context.Context, frame image.Image, result core.DetectionResult) error
}

type fallback struct {
	primary   Handler
	secondary Handler
}

// Fallback tenta primary e, se falhar, entrega o mesmo quadro a secondary.
func Fallback(primary, secondary Handler) Handler {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) Handle(ctx context.Context, frame image.Image, result core.DetectionResult) error {
	err := f.primary.Handle(ctx, frame, result)
	if err == nil {
		return nil
	}
	log.Printf("[handler] envio falhou, salvando localmente: %v", err)
	if err2 := f.secondary.Handle(ctx, frame, result); err2 != nil {
		return errors.Join(err, fmt.Errorf("fallback: %w", err2))
	}
	return nil
}
