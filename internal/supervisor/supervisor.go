// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/monitor"
)

// State é o estado da máquina de failover.
type State int32

const (
	StateStopped State = iota
	StateRunningOnline
	StateRunningLocal
)

func (s State) String() string {
	switch s {
	case StateRunningOnline:
		return "running_online"
	case StateRunningLocal:
		return "running_local"
	default:
		return "stopped"
	}
}

func stateFor(mode core.Mode) State {
	if mode == core.ModeLocal {
		return StateRunningLocal
	}
	return StateRunningOnline
}

// Prober reduz a rede a um booleano.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Publisher é o subconjunto do cliente MQTT usado no status.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// PipelineFactory cria um par novo (inspector + decision) para o modo.
type PipelineFactory func(mode core.Mode) *monitor.Pipeline

type Options struct {
	DeviceID string
	// Window é a janela de observação da sessão inteira; o failover não a
	// reinicia.
	Window         time.Duration
	PollInterval   time.Duration
	RestartDelay   time.Duration
	StatusInterval time.Duration
	BaseTopic      string
}

// Supervisor mantém no máximo um par rodando e troca online <-> local
// conforme a rede, sempre parando e esperando o par antigo antes de subir
// o novo.
type Supervisor struct {
	newPipeline PipelineFactory
	prober      Prober
	mqtt        Publisher
	opts        Options
	baseTopic   string

	state atomic.Int32

	mu     sync.Mutex
	active *monitor.Pipeline
	window monitor.Window

	proc *process.Process // processo do cam-guard para métricas
}

func New(factory PipelineFactory, prober Prober, mqtt Publisher, opts Options) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = 30 * time.Second
	}
	if opts.DeviceID == "" {
		opts.DeviceID, _ = os.Hostname()
	}

	var procHandle *process.Process
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		procHandle = p
	}

	return &Supervisor{
		newPipeline: factory,
		prober:      prober,
		mqtt:        mqtt,
		opts:        opts,
		baseTopic:   strings.TrimSuffix(opts.BaseTopic, "/"),
		proc:        procHandle,
	}
}

func (s *Supervisor) State() State { return State(s.state.Load()) }

// Mode devolve o modo do par ativo, ou "" se não há par rodando.
func (s *Supervisor) Mode() core.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Mode()
}

// Run sobe o par online e acompanha a rede até a sessão acabar (limite de
// eventos ruins ou fim da janela) ou o ctx ser cancelado. Devolve o motivo.
func (s *Supervisor) Run(ctx context.Context) monitor.Outcome {
	s.window = monitor.NewWindow(s.opts.Window, time.Now())
	log.Printf("[supervisor] sessão iniciada (janela=%s poll=%s)", s.opts.Window, s.opts.PollInterval)

	// o status loop para antes da última publicação de estado
	stopStatus := func() {}
	if s.mqtt != nil && s.opts.StatusInterval > 0 {
		statusCtx, cancelStatus := context.WithCancel(ctx)
		statusDone := make(chan struct{})
		go func() {
			defer close(statusDone)
			s.runStatusLoop(statusCtx)
		}()
		stopStatus = func() {
			cancelStatus()
			<-statusDone
		}
	}
	defer stopStatus()

	s.start(ctx, core.ModeOnline)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var retryAt time.Time
	for {
		var done <-chan struct{}
		if p := s.current(); p != nil {
			done = p.Done()
		}

		select {
		case <-ctx.Done():
			log.Printf("[supervisor] context canceled, parando pipeline")
			s.drain()
			stopStatus()
			s.setState(StateStopped)
			return monitor.OutcomeStopped

		case <-done:
			p := s.current()
			outcome := p.Wait()
			if outcome.Terminal() {
				log.Printf("[supervisor] pipeline %s terminou (%s), sessão encerrada", p.Mode(), outcome)
				s.clear()
				stopStatus()
				s.setState(StateStopped)
				return outcome
			}
			log.Printf("[supervisor] pipeline %s terminou (%s), nova tentativa em %s", p.Mode(), outcome, s.opts.RestartDelay)
			s.clear()
			s.setState(StateStopped)
			retryAt = time.Now().Add(s.opts.RestartDelay)

		case now := <-ticker.C:
			if s.current() == nil && s.window.Expired(now) {
				log.Printf("[supervisor] janela encerrada sem pipeline ativo")
				return monitor.OutcomeTimeout
			}

			want := core.ModeLocal
			if s.prober.Probe(ctx) {
				want = core.ModeOnline
			}
			if ctx.Err() != nil {
				continue
			}

			p := s.current()
			switch {
			case p == nil:
				if now.Before(retryAt) {
					continue
				}
				s.start(ctx, want)
			case p.Mode() != want:
				s.switchTo(ctx, want)
			}
		}
	}
}

// switchTo para o par ativo, espera os dois loops saírem e só então sobe o
// par do outro modo.
func (s *Supervisor) switchTo(ctx context.Context, mode core.Mode) {
	old := s.current()
	log.Printf("[supervisor] rede mudou: %s -> %s, drenando pipeline atual", old.Mode(), mode)

	old.Stop()
	outcome := old.Wait()
	s.clear()
	if outcome.Terminal() {
		// o par terminou sozinho antes de ver o Stop; o select trata no
		// próximo ciclo
		s.restore(old)
		return
	}
	s.start(ctx, mode)
}

func (s *Supervisor) start(ctx context.Context, mode core.Mode) {
	p := s.newPipeline(mode)
	s.mu.Lock()
	s.active = p
	s.mu.Unlock()

	if err := p.Start(ctx, s.window); err != nil {
		log.Printf("[supervisor] falha ao iniciar pipeline %s: %v", mode, err)
		s.setState(StateStopped)
		return
	}
	s.setState(stateFor(mode))
}

func (s *Supervisor) drain() {
	p := s.current()
	if p == nil {
		return
	}
	p.Stop()
	p.Wait()
	s.clear()
}

func (s *Supervisor) current() *monitor.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Supervisor) clear() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

func (s *Supervisor) restore(p *monitor.Pipeline) {
	s.mu.Lock()
	s.active = p
	s.mu.Unlock()
}

func (s *Supervisor) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	log.Printf("[supervisor] estado -> %s", st)
	if s.mqtt != nil {
		s.publishStatus(time.Now())
	}
}
