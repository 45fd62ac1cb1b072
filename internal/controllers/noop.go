package controllers

import (
	"log"
	"sync/atomic"

	"github.com/sua-org/cam-guard/internal/config"
)

// NoopController só registra as chamadas. Usado em bancada e nos testes.
type NoopController struct {
	boots     atomic.Int32
	shutdowns atomic.Int32
	closes    atomic.Int32
}

func init() {
	RegisterController("noop", func(config.ControllerConfig) (Controller, error) {
		return NewNoopController(), nil
	})
}

func NewNoopController() *NoopController { return &NoopController{} }

func (c *NoopController) Boot() error {
	c.boots.Add(1)
	log.Printf("[controller] noop boot")
	return nil
}

func (c *NoopController) Shutdown() error {
	c.shutdowns.Add(1)
	log.Printf("[controller] noop shutdown")
	return nil
}

func (c *NoopController) Close() error {
	c.closes.Add(1)
	return nil
}

// Counts devolve quantas vezes cada operação foi chamada.
func (c *NoopController) Counts() (boots, shutdowns, closes int) {
	return int(c.boots.Load()), int(c.shutdowns.Load()), int(c.closes.Load())
}
