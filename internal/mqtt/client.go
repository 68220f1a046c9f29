package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"deepface-gateway/config"
	"deepface-gateway/internal/inference"
	"deepface-gateway/internal/util/timezone"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
	publishWait   = 5 * time.Second
)

// NewClientFunc ist als Variable definiert, damit Tests den Paho-Client ersetzen können
var NewClientFunc = mqtt.NewClient

// Client veröffentlicht Inferenz-Ereignisse über MQTT
type Client struct {
	config    config.MQTTConfig
	client    mqtt.Client
	connected atomic.Bool
	onConnect []func()
}

// EventPayload ist die JSON-Nachricht, die pro Anfrage veröffentlicht wird
type EventPayload struct {
	RequestID  string `json:"request_id"`
	Operation  string `json:"operation"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// OnConnect registriert eine Funktion, die nach jedem (Wieder-)Verbinden läuft.
// Muss vor Start aufgerufen werden.
func (c *Client) OnConnect(fn func()) {
	c.onConnect = append(c.onConnect, fn)
}

// StatusTopic liefert das Verfügbarkeits-Topic
func (c *Client) StatusTopic() string {
	return c.config.TopicPrefix + "/status"
}

// EventTopic liefert das Topic für eine Operation
func (c *Client) EventTopic(operation string) string {
	return c.config.TopicPrefix + "/" + operation
}

// Start verbindet den Client mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Broker meldet "offline", wenn die Verbindung unerwartet abbricht
	opts.SetWill(c.StatusTopic(), statusOffline, 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = NewClientFunc(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop meldet "offline" und trennt die Verbindung
func (c *Client) Stop() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	log.Info("Disconnecting MQTT client...")
	token := c.client.Publish(c.StatusTopic(), 1, true, statusOffline)
	token.WaitTimeout(publishWait)
	c.client.Disconnect(250)
	c.connected.Store(false)
	log.Info("MQTT client disconnected")
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	c.connected.Store(true)

	token := client.Publish(c.StatusTopic(), 1, true, statusOnline)
	if token.WaitTimeout(publishWait) && token.Error() != nil {
		log.Errorf("Failed to publish availability to %s: %v", c.StatusTopic(), token.Error())
	}

	for _, fn := range c.onConnect {
		fn()
	}
}

// PublishRetain veröffentlicht eine Nachricht mit QoS 1 und Retain-Flag.
// Strings werden unverändert gesendet, alles andere als JSON.
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	if c.client == nil || !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	var data []byte
	switch p := payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = p
	default:
		var err error
		if data, err = json.Marshal(p); err != nil {
			return fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
	}

	token := c.client.Publish(topic, 1, true, data)
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("timeout publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	log.Debugf("Published retained message to topic: %s", topic)
	return nil
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
	c.connected.Store(false)
}

// BuildPayload wandelt ein Inferenz-Ereignis in die MQTT-Nachricht um
func BuildPayload(event inference.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		RequestID:  event.RequestID,
		Operation:  string(event.Operation),
		Status:     event.Status,
		DurationMs: event.Duration.Milliseconds(),
		Error:      event.Error,
		Timestamp:  timezone.ISO8601(event.Timestamp),
	})
}

// Observe veröffentlicht das Ereignis mit QoS 0 ohne Retain-Flag.
// Ist der Client nicht verbunden, wird das Ereignis verworfen.
func (c *Client) Observe(ctx context.Context, event inference.Event) {
	if !c.IsConnected() {
		log.Debugf("MQTT not connected, dropping %s event", event.Operation)
		return
	}

	payload, err := BuildPayload(event)
	if err != nil {
		log.Errorf("Failed to marshal MQTT event: %v", err)
		return
	}

	topic := c.EventTopic(string(event.Operation))
	token := c.client.Publish(topic, 0, false, payload)

	// Auf die Bestätigung im Hintergrund warten, die Anfrage blockiert nicht
	go func() {
		if !token.WaitTimeout(publishWait) {
			log.Warnf("Timeout publishing MQTT event to %s", topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Errorf("Failed to publish MQTT event to %s: %v", topic, err)
			return
		}
		log.Debugf("Published message to topic: %s", topic)
	}()
}
