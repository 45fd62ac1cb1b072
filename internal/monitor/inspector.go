package monitor

import (
	"log"
	"time"

	"github.com/sua-org/cam-guard/internal/core"
)

// runInspector é o produtor: pega o último quadro, carimba o horário e
// entrega no EventChannel, uma vez por intervalo de inspeção.
func (p *Pipeline) runInspector() {
	defer p.wg.Done()

	src, err := p.deps.OpenSource()
	if err != nil {
		p.fail("inspector", "camera", err)
		return
	}
	defer func() {
		if err := src.Release(); err != nil {
			log.Printf("[inspector:%s] erro ao liberar câmera: %v", p.mode, err)
		}
	}()

	src.Start()
	if !src.IsStarted() {
		p.fail("inspector", "camera", errNotStarted)
		return
	}
	log.Printf("[inspector:%s] captura iniciada", p.mode)

	missed := 0
	var lastSeq uint64
	for {
		if !p.state.Running() {
			return
		}
		now := time.Now()
		if p.window.Expired(now) {
			p.expire("inspector")
			return
		}
		if !src.IsStarted() {
			p.fail("inspector", "camera", errCameraLost)
			return
		}

		frame, ok := src.ReadLatest()
		// quadro repetido não é evento novo: câmera congelada não conta
		if ok && frame.Seq <= lastSeq {
			ok = false
		}
		if !ok {
			// falha de captura é transitória: tenta de novo sem sair do loop
			if missed == 0 {
				log.Printf("[inspector:%s] nenhum quadro lido, tentando de novo", p.mode)
			}
			missed++
			if !p.sleep(p.settings.CaptureRetry) {
				return
			}
			continue
		}
		if missed > 0 {
			log.Printf("[inspector:%s] quadro disponível após %d tentativas", p.mode, missed)
			missed = 0
		}
		lastSeq = frame.Seq

		evt := core.InspectionEvent{Frame: frame.Image, CapturedAt: now}
		select {
		case p.events <- evt:
		case <-p.state.Done():
			return
		}
		log.Printf("[inspector:%s] quadro #%d enviado (%s)", p.mode, frame.Seq, now.Format("2006-01-02 15:04:05"))

		wait := p.settings.InspectionInterval
		if rem := p.window.Remaining(time.Now()); rem < wait {
			wait = rem
		}
		if !p.sleep(wait) {
			return
		}
	}
}
