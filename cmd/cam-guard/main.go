// cmd/cam-guard/main.go
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sua-org/cam-guard/internal/camera"
	"github.com/sua-org/cam-guard/internal/config"
	"github.com/sua-org/cam-guard/internal/controllers"
	"github.com/sua-org/cam-guard/internal/core"
	"github.com/sua-org/cam-guard/internal/detectors"
	"github.com/sua-org/cam-guard/internal/handlers"
	"github.com/sua-org/cam-guard/internal/monitor"
	"github.com/sua-org/cam-guard/internal/mqttclient"
	"github.com/sua-org/cam-guard/internal/netcheck"
	"github.com/sua-org/cam-guard/internal/storage"
	"github.com/sua-org/cam-guard/internal/supervisor"

	_ "github.com/sua-org/cam-guard/internal/opencv"
)

func main() {
	// Carrega .env na raiz (se não existir, só loga aviso)
	if err := godotenv.Load(); err != nil {
		log.Printf("[main] aviso: não foi possível carregar .env: %v", err)
	} else {
		log.Printf("[main] .env carregado com sucesso")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] configuração inválida: %v", err)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("[main] aviso: não foi possível abrir %s: %v", cfg.LogFile, err)
		} else {
			defer f.Close()
			log.SetOutput(io.MultiWriter(os.Stderr, f))
		}
	}

	ctrl, err := controllers.New(cfg.Controller)
	if err != nil {
		log.Fatalf("[main] controller %q: %v", cfg.Controller.Backend, err)
	}
	defer ctrl.Close()

	// MinIO e MQTT são opcionais; sem eles o modo online usa só o upload HTTP
	// e o fallback local
	var store storage.ImageStore
	if s, err := storage.NewMinioStore(cfg.Minio); err != nil {
		log.Printf("[main] aviso: MinIO não inicializado: %v", err)
	} else {
		store = s
	}

	var mqttCli *mqttclient.Client
	if cfg.MQTT.Enabled() {
		mcfg := mqttclient.FromConfig(cfg.MQTT, "cam-guard-"+cfg.DeviceID)
		mcfg.Will = &mqttclient.Will{
			Topic:   supervisor.StatusTopic(cfg.Online.BaseTopic, cfg.DeviceID),
			Payload: supervisor.OfflinePayload(cfg.DeviceID),
		}
		if mqttCli, err = mqttclient.NewClient(mcfg); err != nil {
			log.Printf("[main] aviso: MQTT indisponível: %v", err)
			mqttCli = nil
		} else {
			defer mqttCli.Close()
		}
	}

	local := handlers.NewLocalHandler(cfg.Local.OutputDir, cfg.Detector.Labels)
	online := &handlers.OnlineHandler{
		DeviceID:    cfg.DeviceID,
		Labels:      cfg.Detector.Labels,
		BaseTopic:   cfg.Online.BaseTopic,
		IncidentURL: cfg.Online.IncidentURL,
		Store:       store,
	}
	var statusPub supervisor.Publisher
	if mqttCli != nil {
		online.Publisher = mqttCli
		statusPub = mqttCli
	}

	settings := monitor.Settings{
		InspectionInterval: cfg.Monitor.InspectionInterval,
		FailureNum:         cfg.Monitor.FailureNum,
		EventNum:           cfg.Monitor.EventNum,
		Threshold:          cfg.Detector.Threshold,
		QueueSize:          cfg.Monitor.QueueSize,
		CaptureRetry:       cfg.Monitor.CaptureRetry,
	}
	deps := monitor.Deps{
		OpenSource: func() (monitor.FrameSource, error) {
			src, err := camera.Open(cfg.Camera.Backend, cfg.Camera.Source)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		NewDetector: func() (detectors.Detector, error) {
			d, err := detectors.New(cfg.Detector)
			if err != nil {
				return nil, err
			}
			return detectors.Guard(d, cfg.Detector.Timeout), nil
		},
		Controller: ctrl,
	}

	factory := func(mode core.Mode) *monitor.Pipeline {
		d := deps
		if mode == core.ModeOnline {
			d.Handler = handlers.Fallback(online, local)
		} else {
			d.Handler = local
		}
		return monitor.New(mode, settings, d)
	}

	sup := supervisor.New(factory, netcheck.New(cfg.Network), statusPub, supervisor.Options{
		DeviceID:       cfg.DeviceID,
		Window:         cfg.Monitor.Window,
		PollInterval:   cfg.Supervisor.PollInterval,
		RestartDelay:   cfg.Supervisor.RestartDelay,
		StatusInterval: cfg.Supervisor.StatusInterval,
		BaseTopic:      cfg.Online.BaseTopic,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("[main] sinal recebido, encerrando...")
		cancel()
	}()

	outcome := sup.Run(ctx)
	log.Printf("[main] monitoramento encerrado: %s", outcome)
}
