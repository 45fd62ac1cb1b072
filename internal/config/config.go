// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid é retornado quando a configuração não pode ser resolvida
// (backend desconhecido, limites inválidos etc).
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	DeviceID   string           `yaml:"device_id"`
	LogFile    string           `yaml:"log_file"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Controller ControllerConfig `yaml:"controller"`
	Network    NetworkConfig    `yaml:"network"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Local      LocalConfig      `yaml:"local"`
	Online     OnlineConfig     `yaml:"online"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Minio      MinioConfig      `yaml:"minio"`
}

type MonitorConfig struct {
	Window             time.Duration `yaml:"window"`
	InspectionInterval time.Duration `yaml:"inspection_interval"`
	FailureNum         int           `yaml:"failure_num"`
	EventNum           int           `yaml:"event_num"`
	QueueSize          int           `yaml:"queue_size"`
	CaptureRetry       time.Duration `yaml:"capture_retry"`
}

type CameraConfig struct {
	Backend string `yaml:"backend"`
	Source  string `yaml:"source"`
}

type DetectorConfig struct {
	Backend     string        `yaml:"backend"`
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	ModelConfig string        `yaml:"model_config"`
	InputSize   int           `yaml:"input_size"`
	Threshold   float64       `yaml:"threshold"`
	Labels      []string      `yaml:"labels"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ControllerConfig struct {
	Backend       string        `yaml:"backend"`
	SerialPort    string        `yaml:"serial_port"`
	SerialBaud    int           `yaml:"serial_baud_rate"`
	SerialTimeout time.Duration `yaml:"serial_timeout"`
	GPIOPin       string        `yaml:"gpio_power_pin"`
}

type NetworkConfig struct {
	Target   string        `yaml:"target"`
	Attempts int           `yaml:"attempts"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SupervisorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

type LocalConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type OnlineConfig struct {
	BaseTopic   string `yaml:"base_topic"`
	IncidentURL string `yaml:"incident_url"`
}

// MQTTConfig descreve o broker. Host vazio desliga o MQTT; o modo online
// segue só com o upload HTTP.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

func (m MQTTConfig) Enabled() bool { return strings.TrimSpace(m.Host) != "" }

// MinioConfig descreve o bucket dos snapshots. Sem access/secret key o modo
// online publica incidentes sem imagem.
type MinioConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

func (m MinioConfig) Enabled() bool { return m.AccessKey != "" && m.SecretKey != "" }

// Default devolve os valores de fábrica do monitor (janela de 200
// minutos, inspeção a cada minuto, 5 eventos ruins).
func Default() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "cam-guard"
	}
	return Config{
		DeviceID: host,
		Monitor: MonitorConfig{
			Window:             200 * time.Minute,
			InspectionInterval: time.Minute,
			FailureNum:         5,
			EventNum:           5,
			QueueSize:          1,
			CaptureRetry:       20 * time.Millisecond,
		},
		Camera: CameraConfig{
			Backend: "opencv",
			Source:  "0",
		},
		Detector: DetectorConfig{
			Backend:   "http",
			URL:       "http://localhost:8000/predict",
			InputSize: 608,
			Threshold: 0.03,
			Labels:    []string{"failure"},
			Timeout:   30 * time.Second,
		},
		Controller: ControllerConfig{
			Backend:       "noop",
			SerialPort:    "/dev/ttyUSB0",
			SerialBaud:    9600,
			SerialTimeout: 3 * time.Second,
			GPIOPin:       "P1_11",
		},
		Network: NetworkConfig{
			Target:   "www.baidu.com:80",
			Attempts: 2,
			Timeout:  2 * time.Second,
		},
		Supervisor: SupervisorConfig{
			PollInterval:   5 * time.Second,
			RestartDelay:   30 * time.Second,
			StatusInterval: 30 * time.Second,
		},
		Local: LocalConfig{
			OutputDir: ".",
		},
		Online: OnlineConfig{
			BaseTopic: "cam-guard/devices",
		},
		MQTT: MQTTConfig{
			Port: 1883,
		},
		Minio: MinioConfig{
			Endpoint: "localhost:9000",
			Bucket:   "cam-guard-incidents",
		},
	}
}

// Load monta a configuração em três camadas: defaults, arquivo YAML opcional
// (CAMGUARD_CONFIG_FILE) e variáveis de ambiente. O .env já deve ter sido
// carregado pelo main.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CAMGUARD_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
		log.Printf("[config] arquivo %s carregado", path)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DeviceID = getenv("DEVICE_ID", cfg.DeviceID)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)

	m := &cfg.Monitor
	m.Window = envDurationMinutes("MONITOR_WINDOW_MINUTES", m.Window)
	m.InspectionInterval = envDurationSeconds("MONITOR_INSPECTION_INTERVAL_SECONDS", m.InspectionInterval)
	m.FailureNum = getenvInt("MONITOR_FAILURE_NUM", m.FailureNum)
	m.EventNum = getenvInt("MONITOR_EVENT_NUM", m.EventNum)
	m.QueueSize = getenvInt("MONITOR_QUEUE_SIZE", m.QueueSize)
	m.CaptureRetry = envDurationMillis("MONITOR_CAPTURE_RETRY_MS", m.CaptureRetry)

	cfg.Camera.Backend = strings.ToLower(getenv("CAMERA_BACKEND", cfg.Camera.Backend))
	cfg.Camera.Source = getenv("CAMERA_SOURCE", cfg.Camera.Source)

	d := &cfg.Detector
	d.Backend = strings.ToLower(getenv("DETECTOR_BACKEND", d.Backend))
	d.URL = getenv("DETECTOR_URL", d.URL)
	d.Model = getenv("DETECTOR_MODEL", d.Model)
	d.ModelConfig = getenv("DETECTOR_MODEL_CONFIG", d.ModelConfig)
	d.InputSize = getenvInt("DETECTOR_INPUT_SIZE", d.InputSize)
	d.Threshold = getenvFloat("DETECTOR_THRESHOLD", d.Threshold)
	if labels := parseCSV(os.Getenv("DETECTOR_LABELS")); len(labels) > 0 {
		d.Labels = labels
	}
	d.Timeout = envDurationSeconds("DETECTOR_TIMEOUT_SECONDS", d.Timeout)

	c := &cfg.Controller
	c.Backend = strings.ToLower(getenv("CONTROLLER", c.Backend))
	c.SerialPort = getenv("SERIAL_PORT", c.SerialPort)
	c.SerialBaud = getenvInt("SERIAL_BAUD_RATE", c.SerialBaud)
	c.SerialTimeout = envDurationSeconds("SERIAL_TIMEOUT_SECONDS", c.SerialTimeout)
	c.GPIOPin = getenv("GPIO_POWER_PIN", c.GPIOPin)

	n := &cfg.Network
	n.Target = getenv("NETWORK_PROBE_TARGET", n.Target)
	n.Attempts = getenvInt("NETWORK_PROBE_ATTEMPTS", n.Attempts)
	n.Timeout = envDurationSeconds("NETWORK_PROBE_TIMEOUT_SECONDS", n.Timeout)

	s := &cfg.Supervisor
	s.PollInterval = envDurationSeconds("SUPERVISOR_POLL_SECONDS", s.PollInterval)
	s.RestartDelay = envDurationSeconds("SUPERVISOR_RESTART_SECONDS", s.RestartDelay)
	// 0 desliga o status loop, por isso não passa pelo envDurationSeconds
	if v := strings.TrimSpace(os.Getenv("STATUS_INTERVAL_SECONDS")); v == "0" {
		s.StatusInterval = 0
	} else {
		s.StatusInterval = envDurationSeconds("STATUS_INTERVAL_SECONDS", s.StatusInterval)
	}

	cfg.Local.OutputDir = getenv("LOCAL_OUTPUT_DIR", cfg.Local.OutputDir)
	cfg.Online.BaseTopic = strings.TrimSuffix(getenv("MQTT_BASE_TOPIC", cfg.Online.BaseTopic), "/")
	cfg.Online.IncidentURL = getenv("INCIDENT_URL", cfg.Online.IncidentURL)

	q := &cfg.MQTT
	q.Host = getenv("MQTT_HOST", q.Host)
	q.Port = getenvInt("MQTT_PORT", q.Port)
	q.Username = getenv("MQTT_USERNAME", q.Username)
	q.Password = getenv("MQTT_PASSWORD", q.Password)
	q.ClientID = getenv("MQTT_CLIENT_ID", q.ClientID)

	o := &cfg.Minio
	o.Endpoint = getenv("MINIO_ENDPOINT", o.Endpoint)
	o.AccessKey = getenv("MINIO_ACCESS_KEY", o.AccessKey)
	o.SecretKey = getenv("MINIO_SECRET_KEY", o.SecretKey)
	o.Bucket = getenv("MINIO_BUCKET", o.Bucket)
	o.UseSSL = getenvBool("MINIO_USE_SSL", o.UseSSL)
	o.PublicBaseURL = getenv("MINIO_PUBLIC_BASE_URL", o.PublicBaseURL)
}

// Validate devolve um erro que embrulha ErrInvalid no primeiro problema
// encontrado.
func (c Config) Validate() error {
	m := c.Monitor
	switch {
	case strings.TrimSpace(c.DeviceID) == "":
		return invalid("device_id vazio")
	case m.Window <= 0:
		return invalid("monitor.window deve ser > 0")
	case m.InspectionInterval <= 0:
		return invalid("monitor.inspection_interval deve ser > 0")
	case m.FailureNum < 0:
		return invalid("monitor.failure_num deve ser >= 0")
	case m.EventNum <= 0:
		return invalid("monitor.event_num deve ser > 0")
	case m.QueueSize < 1 || m.QueueSize > 8:
		return invalid("monitor.queue_size deve estar entre 1 e 8")
	case m.CaptureRetry < 0:
		return invalid("monitor.capture_retry deve ser >= 0")
	}

	if !oneOf(c.Camera.Backend, "opencv", "dir") {
		return invalid("camera.backend %q desconhecido", c.Camera.Backend)
	}
	if strings.TrimSpace(c.Camera.Source) == "" {
		return invalid("camera.source vazio")
	}

	switch c.Detector.Backend {
	case "http":
		if strings.TrimSpace(c.Detector.URL) == "" {
			return invalid("detector.url obrigatório para backend http")
		}
	case "opencv":
		if strings.TrimSpace(c.Detector.Model) == "" {
			return invalid("detector.model obrigatório para backend opencv")
		}
	default:
		return invalid("detector.backend %q desconhecido", c.Detector.Backend)
	}
	if c.Detector.Threshold < 0 || c.Detector.Threshold > 1 {
		return invalid("detector.threshold fora de [0,1]")
	}

	switch c.Controller.Backend {
	case "serial":
		if c.Controller.SerialPort == "" || c.Controller.SerialBaud <= 0 {
			return invalid("serial_port/serial_baud_rate obrigatórios para controller serial")
		}
	case "gpio":
		if strings.TrimSpace(c.Controller.GPIOPin) == "" {
			return invalid("gpio_power_pin obrigatório para controller gpio")
		}
	case "noop":
	default:
		return invalid("controller %q desconhecido", c.Controller.Backend)
	}

	if strings.TrimSpace(c.Network.Target) == "" || c.Network.Attempts <= 0 {
		return invalid("network.target/attempts inválidos")
	}
	if c.Supervisor.PollInterval <= 0 {
		return invalid("supervisor.poll_interval deve ser > 0")
	}
	if c.MQTT.Enabled() && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return invalid("mqtt.port %d inválida", c.MQTT.Port)
	}
	if c.Minio.Enabled() && (strings.TrimSpace(c.Minio.Endpoint) == "" || strings.TrimSpace(c.Minio.Bucket) == "") {
		return invalid("minio.endpoint/bucket obrigatórios com credenciais definidas")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
