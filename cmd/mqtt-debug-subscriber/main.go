package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sua-org/cam-guard/internal/config"
	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/mqttclient"
)

func main() {
	// mesmo arquivo/env do monitor: tópico base e broker vêm da config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuração inválida: %v", err)
	}
	baseTopic := cfg.Online.BaseTopic

	// base/<device>/incidents e base/<device>/status
	topics := []string{baseTopic + "/+/incidents", baseTopic + "/+/status"}
	if t := os.Getenv("MQTT_DEBUG_TOPIC"); t != "" {
		topics = []string{t}
	}

	mcfg := mqttclient.FromConfig(cfg.MQTT, "cam-guard-debug-subscriber")
	if mcfg.Host == "" {
		mcfg.Host = "localhost"
	}
	mqttCli, err := mqttclient.NewClient(mcfg)
	if err != nil {
		log.Fatalf("erro ao conectar no MQTT: %v", err)
	}
	defer mqttCli.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for _, topic := range topics {
		if err := mqttCli.Subscribe(topic, 1, handleMessage); err != nil {
			log.Fatalf("erro ao assinar tópico %s: %v", topic, err)
		}
		log.Printf("[debug] subscribed to topic: %s", topic)
	}

	go func() {
		<-sig
		log.Println("[debug] sinal recebido, encerrando subscriber...")
		cancel()
	}()

	<-ctx.Done()
	time.Sleep(500 * time.Millisecond)
}

func handleMessage(topic string, payload []byte) {
	log.Printf("\n[debug] mensagem recebida no tópico: %s (%d bytes)", topic, len(payload))

	switch {
	case strings.HasSuffix(topic, "/incidents"):
		handleIncident(payload)
	case strings.HasSuffix(topic, "/status"):
		handleStatus(payload)
	default:
		log.Printf("[debug] payload como string: %s", string(payload))
	}
}

func handleIncident(payload []byte) {
	var inc core.Incident
	if err := json.Unmarshal(payload, &inc); err != nil {
		log.Printf("[debug] erro ao fazer unmarshal do incidente: %v", err)
		log.Printf("[debug] payload como string: %s", string(payload))
		return
	}

	log.Printf("[INCIDENT] id=%s device=%s mode=%s at=%s regions=%d",
		inc.IncidentID, inc.DeviceID, inc.Mode, inc.OccurredAt.Format(time.RFC3339), len(inc.Incidents))
	for i, r := range inc.Incidents {
		log.Printf("[INCIDENT]   #%d %s=%v em (%d,%d %dx%d)", i+1,
			r.Label.Key, r.Label.Value, r.Location.Left, r.Location.Top, r.Location.Width, r.Location.Height)
	}
	if inc.SnapshotURL == "" {
		log.Printf("[INCIDENT] sem snapshot (MinIO indisponível no dispositivo)")
		return
	}
	log.Printf("[INCIDENT] snapshot: %s", inc.SnapshotURL)
}

func handleStatus(payload []byte) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("[debug] erro ao fazer unmarshal do status: %v", err)
		return
	}

	// Mostra JSON bonitinho
	pretty, _ := json.MarshalIndent(raw, "", "  ")
	log.Printf("[debug] JSON decodificado:\n%s", string(pretty))

	log.Printf("[STATUS] device=%s status=%s state=%s mode=%s cpu=%s",
		getString(raw, "device_id"), getString(raw, "status"), getString(raw, "state"),
		getString(raw, "mode"), formatNumber(raw["cpu_percent"]))
}

func formatNumber(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.1f%%", f)
	}
	return "-"
}

func getString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
