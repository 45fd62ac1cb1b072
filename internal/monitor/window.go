package monitor

import "time"

// Window é a janela de observação. Os dois loops calculam o tempo decorrido
// contra o mesmo relógio de parede, sem objeto compartilhado além disso.
type Window struct {
	AllTime   time.Duration
	StartTime time.Time
}

func NewWindow(allTime time.Duration, start time.Time) Window {
	return Window{AllTime: allTime, StartTime: start}
}

// Remaining devolve quanto falta; <= 0 significa janela encerrada.
func (w Window) Remaining(now time.Time) time.Duration {
	return w.AllTime - now.Sub(w.StartTime)
}

func (w Window) Expired(now time.Time) bool {
	return w.Remaining(now) <= 0
}
