// internal/core/types.go
package core

import (
	"image"
	"time"
)

// Mode identifica a variante do par de pipelines (online reporta para o
// servidor remoto, local trata o resultado no próprio dispositivo).
type Mode string

const (
	ModeOnline Mode = "online"
	ModeLocal  Mode = "local"
)

// Frame é o último quadro capturado pela câmera.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time
}

// InspectionEvent é produzido uma vez por tick de inspeção e passa do
// inspector para o decision loop pelo EventChannel. Não deve ser alterado
// depois de criado.
type InspectionEvent struct {
	Frame      image.Image
	CapturedAt time.Time
}

// Box é uma região detectada: [class_id, score, xmin, ymin, xmax, ymax].
type Box struct {
	ClassID int     `json:"class_id"`
	Score   float64 `json:"score"`
	XMin    float64 `json:"xmin"`
	YMin    float64 `json:"ymin"`
	XMax    float64 `json:"xmax"`
	YMax    float64 `json:"ymax"`
}

// Rect converte a box para coordenadas inteiras de imagem.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.XMin), int(b.YMin), int(b.XMax), int(b.YMax))
}

type DetectionResult struct {
	BadCount int   `json:"num"`
	Boxes    []Box `json:"boxes"`
}

// Incident é o payload publicado no MQTT quando o limite de eventos ruins é
// atingido no modo online.
type Incident struct {
	IncidentID  string           `json:"incident_id"`
	DeviceID    string           `json:"device_id"`
	Mode        Mode             `json:"mode"`
	OccurredAt  time.Time        `json:"occurred_at"`
	SnapshotURL string           `json:"snapshot_url,omitempty"`
	Incidents   []IncidentRegion `json:"incidents"`
	Results     []IncidentText   `json:"results"`
}

type IncidentRegion struct {
	Location IncidentLocation       `json:"location"`
	Label    IncidentText           `json:"label"`
	Style    map[string]interface{} `json:"style"`
}

type IncidentLocation struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type IncidentText struct {
	Key     string                 `json:"key"`
	KeyDesc string                 `json:"key_desc"`
	Value   interface{}            `json:"value"`
	Style   map[string]interface{} `json:"style"`
}
