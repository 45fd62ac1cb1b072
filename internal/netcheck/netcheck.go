// internal/netcheck/netcheck.go
package netcheck

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/sua-org/cam-guard/internal/config"
)

const defaultPort = "80"

// Prober verifica se o endereço remoto responde. Não guarda estado entre
// chamadas e pode ser usado de várias goroutines.
type Prober struct {
	Target   string
	Attempts int
	Timeout  time.Duration

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func New(cfg config.NetworkConfig) *Prober {
	return &Prober{Target: cfg.Target, Attempts: cfg.Attempts, Timeout: cfg.Timeout}
}

// Probe faz até Attempts conexões TCP ao alvo e devolve true na primeira que
// abrir. Qualquer erro conta como inalcançável.
func (p *Prober) Probe(ctx context.Context) bool {
	addr := p.addr()
	if addr == "" {
		return false
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	dial := p.dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		ctxDial, cancel := context.WithTimeout(ctx, timeout)
		conn, err := dial(ctxDial, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			return true
		}
		lastErr = err
	}
	log.Printf("[netcheck] %s inalcançável após %d tentativas: %v", addr, attempts, lastErr)
	return false
}

// addr completa a porta padrão quando o alvo é só um host.
func (p *Prober) addr() string {
	if p.Target == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(p.Target); err == nil {
		return p.Target
	}
	return net.JoinHostPort(p.Target, defaultPort)
}
