// internal/mqttclient/mqttclient.go
package mqttclient

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sua-org/cam-guard/internal/config"
)

type Client struct {
	client mqtt.Client
}

// Will é a mensagem retida que o broker publica se a conexão cair sem
// Disconnect (ex.: dispositivo desligado pelo próprio shutdown).
type Will struct {
	Topic   string
	Payload []byte
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
	Will     *Will
}

// FromConfig converte a seção mqtt da configuração. Sem client_id usa
// defaultClientID.
func FromConfig(c config.MQTTConfig, defaultClientID string) Config {
	id := c.ClientID
	if id == "" {
		id = defaultClientID
	}
	port := c.Port
	if port <= 0 {
		port = 1883
	}
	return Config{
		Host:     c.Host,
		Port:     port,
		Username: c.Username,
		Password: c.Password,
		ClientID: id,
	}
}

func NewClient(cfg Config) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.Will != nil {
		opts.SetBinaryWill(cfg.Will.Topic, cfg.Will.Payload, 1, true)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	return &Client{client: cli}, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
