// internal/controllers/serial.go
package controllers

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/sua-org/cam-guard/internal/config"
)

// Comandos enviados para a placa de relé pela linha serial.
var (
	serialBootCmd     = []byte("1")
	serialShutdownCmd = []byte("0")
)

// portOpener existe para os testes trocarem a porta real por um buffer.
type portOpener func(name string, baud int, timeout time.Duration) (io.WriteCloser, error)

func openSerialPort(name string, baud int, timeout time.Duration) (io.WriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if err := port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	return port, nil
}

// SerialController alterna a alimentação escrevendo um byte na porta serial.
// A porta é aberta na primeira chamada de Boot/Shutdown, assim uma placa
// desconectada derruba só o pipeline e não o processo.
type SerialController struct {
	portName string
	baud     int
	timeout  time.Duration
	open     portOpener

	mu     sync.Mutex
	port   io.WriteCloser
	closed bool
}

func init() {
	RegisterController("serial", func(cfg config.ControllerConfig) (Controller, error) {
		return NewSerialController(cfg.SerialPort, cfg.SerialBaud, cfg.SerialTimeout), nil
	})
}

func NewSerialController(portName string, baud int, timeout time.Duration) *SerialController {
	return &SerialController{
		portName: portName,
		baud:     baud,
		timeout:  timeout,
		open:     openSerialPort,
	}
}

func (c *SerialController) Boot() error {
	return c.send(serialBootCmd)
}

func (c *SerialController) Shutdown() error {
	return c.send(serialShutdownCmd)
}

func (c *SerialController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	if err != nil {
		return fmt.Errorf("close serial port %s: %w", c.portName, err)
	}
	log.Printf("[controller] serial port %s fechada", c.portName)
	return nil
}

func (c *SerialController) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.port == nil {
		port, err := c.open(c.portName, c.baud, c.timeout)
		if err != nil {
			return fmt.Errorf("open serial port %s: %w", c.portName, err)
		}
		c.port = port
		log.Printf("[controller] serial port %s aberta (baud=%d)", c.portName, c.baud)
	}
	if _, err := c.port.Write(data); err != nil {
		return fmt.Errorf("write serial port %s: %w", c.portName, err)
	}
	log.Printf("[controller] serial %s <- %q", c.portName, data)
	return nil
}
