// internal/handlers/online.go
package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/storage"
)

// Publisher é o subconjunto do cliente MQTT usado aqui.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

var errNoSink = errors.New("no incident sink configured")

// OnlineHandler reporta o incidente: snapshot anotado no object storage,
// evento no MQTT e, se configurado, o POST para o servidor de incidentes.
// Qualquer destino nil é ignorado. Só retorna erro se nenhum destino aceitou.
type OnlineHandler struct {
	DeviceID    string
	Labels      []string
	BaseTopic   string
	IncidentURL string

	Store     storage.ImageStore
	Publisher Publisher
	Client    *http.Client

	now func() time.Time
}

func (h *OnlineHandler) Topic() string {
	return fmt.Sprintf("%s/%s/incidents", strings.TrimSuffix(h.BaseTopic, "/"), h.DeviceID)
}

func (h *OnlineHandler) Handle(ctx context.Context, frame image.Image, result core.DetectionResult) error {
	now := time.Now()
	if h.now != nil {
		now = h.now()
	}

	annotated := Annotate(frame, result.Boxes, h.Labels)
	img, err := encodeJPEG(annotated, jpegQuality)
	if err != nil {
		return err
	}
	inc := BuildIncident(h.DeviceID, core.ModeOnline, result, h.Labels, now)

	var (
		errs      []error
		delivered int
	)

	if h.Store != nil {
		ctxUp, cancel := context.WithTimeout(ctx, 10*time.Second)
		url, err := h.Store.SaveSnapshot(ctxUp, h.snapshotKey(inc), img, "image/jpeg")
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("snapshot: %w", err))
		} else {
			inc.SnapshotURL = url
			delivered++
			log.Printf("[handler:online] snapshot salvo: %s", url)
		}
	}

	if h.Publisher != nil {
		if err := h.publish(inc); err != nil {
			errs = append(errs, err)
		} else {
			delivered++
		}
	}

	if h.IncidentURL != "" {
		if err := h.upload(ctx, inc, img); err != nil {
			errs = append(errs, fmt.Errorf("upload incident: %w", err))
		} else {
			delivered++
		}
	}

	if delivered == 0 {
		if len(errs) == 0 {
			return errNoSink
		}
		return errors.Join(errs...)
	}
	for _, err := range errs {
		log.Printf("[handler:online] destino falhou: %v", err)
	}
	log.Printf("[handler:online] incidente %s reportado (%d regiões)", inc.IncidentID, result.BadCount)
	return nil
}

func (h *OnlineHandler) snapshotKey(inc core.Incident) string {
	ts := inc.OccurredAt
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.jpg",
		safePath(h.DeviceID, "device"), ts.Year(), ts.Month(), ts.Day(), inc.IncidentID)
}

func (h *OnlineHandler) publish(inc core.Incident) error {
	b, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	topic := h.Topic()
	if err := h.Publisher.Publish(topic, 1, false, b); err != nil {
		return fmt.Errorf("publish incident to %s: %w", topic, err)
	}
	log.Printf("[handler:online] incidente publicado -> %s", topic)
	return nil
}

type incidentUpload struct {
	IncidentID    string `json:"incident_id"`
	IncidentImage string `json:"incident_image"`
	Response      string `json:"response"`
	OccurenceTime string `json:"occurence_time"`
}

type uploadReply struct {
	Code interface{} `json:"code"`
}

// upload faz o POST em http://<IncidentURL>/incidents/create-incident. O
// servidor confirma com HTTP 200 e um "code" verdadeiro.
func (h *OnlineHandler) upload(ctx context.Context, inc core.Incident, img []byte) error {
	report := struct {
		Incidents []core.IncidentRegion `json:"incidents"`
		Results   []core.IncidentText   `json:"results"`
	}{inc.Incidents, inc.Results}
	resp, err := json.Marshal(report)
	if err != nil {
		return err
	}

	body, err := json.Marshal(incidentUpload{
		IncidentID:    inc.IncidentID,
		IncidentImage: base64.StdEncoding.EncodeToString(img),
		Response:      string(resp),
		OccurenceTime: inc.OccurredAt.Local().Format("2006-01-02 15:04:05.000000"),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.incidentEndpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 100 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	var reply uploadReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	if !truthy(reply.Code) {
		return fmt.Errorf("server rejected incident (code=%v)", reply.Code)
	}
	return nil
}

func (h *OnlineHandler) incidentEndpoint() string {
	base := strings.TrimSuffix(h.IncidentURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + "/incidents/create-incident"
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return false
	}
}

func safePath(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return strings.NewReplacer("/", "_", " ", "_", "\\", "_").Replace(s)
}
