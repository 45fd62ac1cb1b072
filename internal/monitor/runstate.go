package monitor

import (
	"sync"
	"sync/atomic"
)

// RunState é a flag "o pipeline deve continuar rodando", compartilhada pelo
// inspector, pelo decision loop e pelo supervisor. Além da leitura atômica,
// Done() devolve um canal fechado quando a flag vai para false, para que
// quem está bloqueado (push/pop no EventChannel, sleep) acorde na hora.
type RunState struct {
	running atomic.Bool

	mu      sync.Mutex
	stopped chan struct{}
}

// NewRunState cria a flag em false.
func NewRunState() *RunState {
	ch := make(chan struct{})
	close(ch)
	return &RunState{stopped: ch}
}

// Start leva a flag para true. Devolve false se já estava rodando.
func (r *RunState) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return false
	}
	r.stopped = make(chan struct{})
	r.running.Store(true)
	return true
}

// Stop leva a flag para false. Devolve true só para quem fez a transição.
func (r *RunState) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running.Load() {
		return false
	}
	r.running.Store(false)
	close(r.stopped)
	return true
}

func (r *RunState) Running() bool {
	return r.running.Load()
}

// Done fecha quando a flag vai para false.
func (r *RunState) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
