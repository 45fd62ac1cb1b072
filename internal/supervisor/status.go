package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

func (s *Supervisor) runStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()

	log.Printf("[supervisor] status loop iniciado (intervalo=%s)", s.opts.StatusInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[supervisor] status loop encerrado (context canceled)")
			return
		case t := <-ticker.C:
			s.publishStatus(t)
		}
	}
}

func (s *Supervisor) publishStatus(now time.Time) {
	if err := s.mqtt.Publish(s.statusTopic(), 1, true, s.statusPayload(now)); err != nil {
		log.Printf("[status] erro ao publicar status: %v", err)
	}
}

func (s *Supervisor) statusPayload(now time.Time) []byte {
	hostname, _ := os.Hostname()

	var (
		cpuPercent  float64
		memPercent  float64
		memRSSBytes uint64
	)
	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			memRSSBytes = memInfo.RSS
		}
		if memP, err := s.proc.MemoryPercent(); err == nil {
			memPercent = float64(memP)
		}
	}

	payload := map[string]interface{}{
		"device_id":        s.opts.DeviceID,
		"status":           "online",
		"state":            s.State().String(),
		"mode":             string(s.Mode()),
		"timestamp":        now.UTC().Format(time.RFC3339),
		"hostname":         hostname,
		"cpu_percent":      cpuPercent,
		"memory_percent":   memPercent,
		"memory_rss_bytes": memRSSBytes,
	}
	if !s.window.StartTime.IsZero() {
		payload["window_remaining_seconds"] = int64(s.window.Remaining(now).Seconds())
	}

	b, _ := json.Marshal(payload)
	return b
}

func (s *Supervisor) statusTopic() string {
	return StatusTopic(s.baseTopic, s.opts.DeviceID)
}

// StatusTopic é o tópico retido de status do dispositivo. Também é usado
// como last will do cliente MQTT.
func StatusTopic(baseTopic, deviceID string) string {
	return fmt.Sprintf("%s/%s/status", baseTopic, deviceID)
}

// OfflinePayload é o last will publicado pelo broker se o dispositivo cair.
func OfflinePayload(deviceID string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"device_id": deviceID,
		"status":    "offline",
	})
	return b
}
