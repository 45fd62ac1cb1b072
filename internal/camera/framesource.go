// internal/camera/framesource.go
package camera

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sua-org/cam-guard/internal/core"
)

const (
	// intervalo entre tentativas quando o device devolve erro transitório
	readErrorBackoff = 10 * time.Millisecond
	// erros seguidos até a câmera ser dada como perdida
	maxConsecutiveReadErrors = 50
	// quanto Stop espera por um Read travado (stream RTSP parado)
	defaultStopTimeout = 5 * time.Second
)

// FrameSource captura em background o mais rápido que o device permite e
// guarda só o último quadro. ReadLatest nunca bloqueia esperando captura.
type FrameSource struct {
	dev Device

	mu     sync.RWMutex
	latest core.Frame
	seq    uint64

	alive   atomic.Bool
	started atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}

	stopTimeout time.Duration

	stopOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

func NewFrameSource(dev Device) *FrameSource {
	return &FrameSource{
		dev:         dev,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		stopTimeout: defaultStopTimeout,
	}
}

// Open resolve o backend, abre o device e devolve a FrameSource ainda
// parada. Falha ao abrir é erro de recurso indisponível.
func Open(backend, source string) (*FrameSource, error) {
	dev, err := OpenDevice(backend, source)
	if err != nil {
		return nil, fmt.Errorf("open camera %s (%s): %w", source, backend, err)
	}
	return NewFrameSource(dev), nil
}

// Start inicia a goroutine de captura. Chamadas extras são ignoradas.
func (s *FrameSource) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.alive.Store(true)
	go s.captureLoop()
}

// IsStarted indica se a captura foi iniciada e a goroutine continua viva.
func (s *FrameSource) IsStarted() bool {
	return s.started.Load() && s.alive.Load()
}

// ReadLatest devolve o quadro mais recente, ou ok=false se nenhum foi
// capturado ainda ou a captura morreu. O mesmo quadro pode ser devolvido
// mais de uma vez enquanto a captura não produz outro; Frame.Seq diz se é
// novo.
func (s *FrameSource) ReadLatest() (core.Frame, bool) {
	if !s.alive.Load() {
		return core.Frame{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seq == 0 {
		return core.Frame{}, false
	}
	return s.latest, true
}

// Stop sinaliza o fim da captura e espera a goroutine terminar, no máximo
// stopTimeout.
func (s *FrameSource) Stop() {
	s.stop()
}

// stop devolve false se a goroutine ainda está presa num Read.
func (s *FrameSource) stop() bool {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if !s.started.Load() {
		return true
	}
	t := time.NewTimer(s.stopTimeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		log.Printf("[camera] captura não parou em %s, device será fechado quando o read voltar", s.stopTimeout)
		return false
	}
}

// Release para a captura (se preciso) e fecha o device uma única vez. Se a
// captura está presa num Read, o fechamento fica para quando ela sair.
func (s *FrameSource) Release() error {
	stopped := s.stop()
	s.releaseOnce.Do(func() {
		if !stopped {
			go func() {
				<-s.done
				if err := s.dev.Close(); err != nil {
					log.Printf("[camera] erro ao fechar device: %v", err)
				}
			}()
			return
		}
		s.releaseErr = s.dev.Close()
	})
	return s.releaseErr
}

func (s *FrameSource) captureLoop() {
	defer close(s.done)
	defer s.alive.Store(false)

	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		img, err := s.dev.Read()
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, io.EOF) {
				log.Printf("[camera] device encerrou a captura: %v", err)
				return
			}
			failures++
			if failures >= maxConsecutiveReadErrors {
				log.Printf("[camera] %d erros de leitura seguidos, câmera perdida: %v", failures, err)
				return
			}
			select {
			case <-s.stopCh:
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		if img == nil {
			continue
		}
		failures = 0

		s.mu.Lock()
		s.seq++
		s.latest = core.Frame{Image: img, Seq: s.seq, CapturedAt: time.Now()}
		s.mu.Unlock()
	}
}
