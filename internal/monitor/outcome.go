package monitor

// Outcome é o motivo pelo qual um pipeline terminou.
type Outcome int32

const (
	OutcomePending Outcome = iota
	OutcomeRunning
	// OutcomeBreach: limite de eventos ruins atingido, shutdown disparado.
	OutcomeBreach
	// OutcomeTimeout: janela acabou sem falha confirmada.
	OutcomeTimeout
	// OutcomeStopped: parado de fora (failover ou fim do processo).
	OutcomeStopped
	// OutcomeFailed: câmera, detector ou controller indisponível.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeRunning:
		return "running"
	case OutcomeBreach:
		return "breach"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeStopped:
		return "stopped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal indica se o resultado encerra a sessão de monitoramento.
func (o Outcome) Terminal() bool {
	return o == OutcomeBreach || o == OutcomeTimeout
}
