// internal/controllers/gpio.go
package controllers

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sua-org/cam-guard/internal/config"
)

// outPin é o pedaço de gpio.PinOut que o controller usa.
type outPin interface {
	Out(l gpio.Level) error
}

// pinResolver devolve o pino pelo nome (ex.: "P1_11", "GPIO17").
type pinResolver func(name string) (outPin, error)

func resolvePin(name string) (outPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q não encontrado", name)
	}
	return p, nil
}

// GPIOController: LOW liga, HIGH desliga (relé ativo em nível baixo).
type GPIOController struct {
	pinName string
	resolve pinResolver

	mu     sync.Mutex
	pin    outPin
	closed bool
}

func init() {
	RegisterController("gpio", func(cfg config.ControllerConfig) (Controller, error) {
		return NewGPIOController(cfg.GPIOPin), nil
	})
}

func NewGPIOController(pinName string) *GPIOController {
	return &GPIOController{pinName: pinName, resolve: resolvePin}
}

func (c *GPIOController) Boot() error {
	return c.set(gpio.Low)
}

func (c *GPIOController) Shutdown() error {
	return c.set(gpio.High)
}

// Close só esquece o pino; o nível atual fica como está para não religar
// a máquina sem querer.
func (c *GPIOController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pin = nil
	return nil
}

func (c *GPIOController) set(level gpio.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.pin == nil {
		pin, err := c.resolve(c.pinName)
		if err != nil {
			return err
		}
		c.pin = pin
	}
	if err := c.pin.Out(level); err != nil {
		return fmt.Errorf("gpio %s out %s: %w", c.pinName, level, err)
	}
	log.Printf("[controller] gpio %s -> %s", c.pinName, level)
	return nil
}
