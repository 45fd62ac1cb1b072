// internal/controllers/base.go
package controllers

import (
	"strings"

	"github.com/sua-org/cam-guard/internal/config"
)

// Controller liga/desliga o processo físico monitorado.
//
// Boot e Shutdown são chamados no máximo uma vez por par de pipelines; o
// backend não precisa tratar chamadas repetidas. Close libera o recurso
// (porta serial, pino) e pode ser chamado mesmo sem Boot/Shutdown antes.
type Controller interface {
	Boot() error
	Shutdown() error
	Close() error
}

type ControllerFactory func(cfg config.ControllerConfig) (Controller, error)

// registry: nome do backend -> factory
var registry = map[string]ControllerFactory{}

// RegisterController é chamado no init() de cada backend (serial, gpio, noop).
func RegisterController(name string, f ControllerFactory) {
	registry[normalize(name)] = f
}

// New resolve o backend configurado. Deve ser chamado uma vez no start do
// processo.
func New(cfg config.ControllerConfig) (Controller, error) {
	if f, ok := registry[normalize(cfg.Backend)]; ok {
		return f(cfg)
	}
	return nil, ErrControllerNotFound
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
