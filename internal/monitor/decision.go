package monitor

import (
	"context"
	"log"
	"time"

	"github.com/sua-org/cam-guard/internal/core"
)

// runDecision é o consumidor: roda o detector em cada evento e conta os
// ticks ruins. Ao chegar em EventNum dispara o shutdown e encerra o par.
func (p *Pipeline) runDecision(ctx context.Context) {
	defer p.wg.Done()

	det, err := p.deps.NewDetector()
	if err != nil {
		p.fail("decision", "detector", err)
		return
	}
	defer func() {
		if err := det.Close(); err != nil {
			log.Printf("[decision:%s] erro ao fechar detector: %v", p.mode, err)
		}
	}()

	eventNum := 0
	for {
		if !p.state.Running() {
			return
		}
		remaining := p.window.Remaining(time.Now())
		if remaining <= 0 {
			p.expire("decision")
			return
		}

		evt, ok := p.next(remaining)
		if !ok {
			continue
		}
		// a flag pode ter mudado enquanto esperávamos o evento
		if !p.state.Running() {
			return
		}

		log.Printf("[decision:%s] predict at %s", p.mode, evt.CapturedAt.Format("2006-01-02 15:04:05"))
		result, err := det.Predict(ctx, evt.Frame, p.settings.Threshold)
		if err != nil {
			log.Printf("[decision:%s] erro no detector, tick ignorado: %v", p.mode, err)
			continue
		}

		if result.BadCount <= p.settings.FailureNum {
			log.Printf("[decision:%s] good work. event num: %d/%d failure num: %d/%d",
				p.mode, eventNum, p.settings.EventNum, result.BadCount, p.settings.FailureNum)
			continue
		}
		eventNum++
		log.Printf("[decision:%s] bad work!!! event num: %d/%d failure num: %d/%d",
			p.mode, eventNum, p.settings.EventNum, result.BadCount, p.settings.FailureNum)

		if eventNum >= p.settings.EventNum {
			p.trigger(ctx, evt, result)
			return
		}
	}
}

// next espera um evento, a janela acabar ou a RunState ir para false.
func (p *Pipeline) next(remaining time.Duration) (core.InspectionEvent, bool) {
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case evt := <-p.events:
		return evt, true
	case <-p.state.Done():
		return core.InspectionEvent{}, false
	case <-timer.C:
		return core.InspectionEvent{}, false
	}
}

// trigger desliga o processo e entrega o último quadro ruim ao handler.
func (p *Pipeline) trigger(ctx context.Context, evt core.InspectionEvent, result core.DetectionResult) {
	if !p.setOutcome(OutcomeBreach) {
		// parado de fora no meio do tick: não desliga
		return
	}
	log.Printf("[decision:%s] número de eventos ruins atingiu o limite (%d), desligando automaticamente",
		p.mode, p.settings.EventNum)

	if err := p.deps.Controller.Shutdown(); err != nil {
		log.Printf("[decision:%s] erro no shutdown do controller: %v", p.mode, err)
	}
	p.state.Stop()

	if p.deps.Handler == nil {
		return
	}
	if err := p.deps.Handler.Handle(ctx, evt.Frame, result); err != nil {
		log.Printf("[decision:%s] erro ao tratar incidente: %v", p.mode, err)
	}
}
