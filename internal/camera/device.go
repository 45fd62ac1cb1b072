// internal/camera/device.go
package camera

import (
	"errors"
	"image"
	"strings"
)

var (
	ErrBackendNotFound = errors.New("no camera backend registered with this name")
	// ErrClosed indica que o device não vai mais produzir quadros. O loop de
	// captura encerra ao receber esse erro.
	ErrClosed = errors.New("camera device closed")
)

// Device é o acesso cru à câmera. Read bloqueia até o próximo quadro.
// Read e Close podem ser chamados de goroutines diferentes.
type Device interface {
	Read() (image.Image, error)
	Close() error
}

// Opener abre um device a partir do identificador configurado (índice,
// URL, diretório...).
type Opener func(source string) (Device, error)

var registry = map[string]Opener{}

// RegisterBackend é chamado no init() de cada backend de câmera.
func RegisterBackend(name string, o Opener) {
	registry[strings.ToLower(strings.TrimSpace(name))] = o
}

func OpenDevice(backend, source string) (Device, error) {
	o, ok := registry[strings.ToLower(strings.TrimSpace(backend))]
	if !ok {
		return nil, ErrBackendNotFound
	}
	return o(source)
}
