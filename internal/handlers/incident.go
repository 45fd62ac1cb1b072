package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/sua-org/cam-guard/internal/core"
)

var (
	textStyle   = map[string]interface{}{"color": "red"}
	regionStyle = map[string]interface{}{"color": "red", "stroke": map[string]interface{}{"width": strokeWidth}}
)

// BuildIncident monta o relatório enviado ao servidor: uma região por box
// detectada e o total de regiões como resultado.
func BuildIncident(deviceID string, mode core.Mode, result core.DetectionResult, labels []string, now time.Time) core.Incident {
	inc := core.Incident{
		IncidentID: uuid.NewString(),
		DeviceID:   deviceID,
		Mode:       mode,
		OccurredAt: now.UTC(),
		Incidents:  make([]core.IncidentRegion, 0, len(result.Boxes)),
	}
	for _, b := range result.Boxes {
		r := b.Rect()
		inc.Incidents = append(inc.Incidents, core.IncidentRegion{
			Location: core.IncidentLocation{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()},
			Label: core.IncidentText{
				Key:     labelFor(b.ClassID, labels),
				KeyDesc: "score",
				Value:   b.Score,
				Style:   textStyle,
			},
			Style: regionStyle,
		})
	}
	inc.Results = []core.IncidentText{{
		Key:     "num",
		KeyDesc: "bad regions",
		Value:   result.BadCount,
		Style:   textStyle,
	}}
	return inc
}
