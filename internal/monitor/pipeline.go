// internal/monitor/pipeline.go
package monitor

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sua-org/cam-guard/internal/controllers"
	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/detectors"
)

// FrameSource é o que o inspector precisa da câmera (ver camera.FrameSource).
type FrameSource interface {
	Start()
	IsStarted() bool
	ReadLatest() (core.Frame, bool)
	Stop()
	Release() error
}

// Handler trata o último quadro ruim quando o limite é atingido (salvar em
// disco no modo local, enviar incidente no modo online).
type Handler interface {
	Handle(ctx context.Context, frame image.Image, result core.DetectionResult) error
}

type HandlerFunc func(ctx context.Context, frame image.Image, result core.DetectionResult) error

func (f HandlerFunc) Handle(ctx context.Context, frame image.Image, result core.DetectionResult) error {
	return f(ctx, frame, result)
}

type SourceFactory func() (FrameSource, error)

type DetectorFactory func() (detectors.Detector, error)

type Settings struct {
	InspectionInterval time.Duration
	// FailureNum é o ruído tolerado por quadro: bad_count <= FailureNum é tick saudável.
	FailureNum int
	// EventNum é quantos ticks ruins disparam o shutdown.
	EventNum     int
	Threshold    float64
	QueueSize    int
	CaptureRetry time.Duration
}

type Deps struct {
	OpenSource  SourceFactory
	NewDetector DetectorFactory
	Controller  controllers.Controller
	Handler     Handler
}

// Pipeline é um par inspector + decision loop com RunState, EventChannel,
// Window e Controller próprios. Um Pipeline roda uma vez só; para reiniciar
// cria-se outro.
type Pipeline struct {
	mode     core.Mode
	settings Settings
	deps     Deps

	window  Window
	state   *RunState
	events  chan core.InspectionEvent
	outcome atomic.Int32

	started atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}
}

func New(mode core.Mode, settings Settings, deps Deps) *Pipeline {
	if settings.QueueSize <= 0 {
		settings.QueueSize = 1
	}
	return &Pipeline{
		mode:     mode,
		settings: settings,
		deps:     deps,
		state:    NewRunState(),
		events:   make(chan core.InspectionEvent, settings.QueueSize),
		done:     make(chan struct{}),
	}
}

func (p *Pipeline) Mode() core.Mode { return p.mode }

// State expõe a RunState do par (para o supervisor e para testes).
func (p *Pipeline) State() *RunState { return p.state }

// Start dá o pulso de boot e sobe os dois loops. Se o boot falhar o
// pipeline termina com OutcomeFailed e Done() já fica fechado.
func (p *Pipeline) Start(ctx context.Context, window Window) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.window = window
	p.outcome.Store(int32(OutcomeRunning))

	if err := p.deps.Controller.Boot(); err != nil {
		p.setOutcome(OutcomeFailed)
		close(p.done)
		return fmt.Errorf("controller boot: %w", err)
	}

	p.state.Start()
	ctx, cancel := context.WithCancel(ctx)

	p.wg.Add(2)
	go p.runInspector()
	go p.runDecision(ctx)
	go func() {
		p.wg.Wait()
		cancel()
		close(p.done)
		log.Printf("[monitor:%s] pipeline encerrado (%s)", p.mode, p.Outcome())
	}()

	log.Printf("[monitor:%s] pipeline iniciado (janela=%s restante=%s intervalo=%s failure_num=%d event_num=%d)",
		p.mode, window.AllTime, window.Remaining(time.Now()).Round(time.Second),
		p.settings.InspectionInterval, p.settings.FailureNum, p.settings.EventNum)
	return nil
}

// Stop pede o fim cooperativo do par. Não espera; use Wait.
func (p *Pipeline) Stop() {
	p.setOutcome(OutcomeStopped)
	p.state.Stop()
}

// Wait bloqueia até os dois loops terminarem.
func (p *Pipeline) Wait() Outcome {
	if !p.started.Load() {
		return OutcomePending
	}
	<-p.done
	return p.Outcome()
}

// Done fecha quando os dois loops terminaram.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

func (p *Pipeline) Outcome() Outcome { return Outcome(p.outcome.Load()) }

// setOutcome grava o motivo do fim; só a primeira condição vale.
func (p *Pipeline) setOutcome(o Outcome) bool {
	return p.outcome.CompareAndSwap(int32(OutcomeRunning), int32(o))
}

func (p *Pipeline) fail(role, resource string, err error) {
	log.Printf("[%s:%s] recurso indisponível (%s): %v", role, p.mode, resource, err)
	p.setOutcome(OutcomeFailed)
	p.state.Stop()
}

func (p *Pipeline) expire(role string) {
	if p.setOutcome(OutcomeTimeout) {
		log.Printf("[%s:%s] janela de observação encerrada sem falha confirmada", role, p.mode)
	}
	p.state.Stop()
}

// sleep espera d ou até a RunState ir para false. Devolve false se parou.
func (p *Pipeline) sleep(d time.Duration) bool {
	if d <= 0 {
		return p.state.Running()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.state.Done():
		return false
	}
}
