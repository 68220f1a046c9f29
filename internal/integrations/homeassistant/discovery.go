package homeassistant

import (
	"fmt"

	"deepface-gateway/internal/integrations/facerecognition"

	log "github.com/sirupsen/logrus"
)

const (
	// ComponentSensor ist der Component-Typ für Sensoren
	ComponentSensor = "sensor"

	// NodeID für das Gateway
	NodeID = "deepface_gateway"
)

// Publisher ist der Teil des MQTT-Clients, den die Discovery benötigt
type Publisher interface {
	PublishRetain(topic string, payload interface{}) error
	StatusTopic() string
	EventTopic(operation string) string
}

// SensorConfig repräsentiert die MQTT-Discovery-Konfiguration für einen Sensor in Home Assistant
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryManager verwaltet die Home Assistant MQTT Discovery
type DiscoveryManager struct {
	publisher Publisher
	prefix    string
	version   string
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(publisher Publisher, discoveryPrefix, version string) *DiscoveryManager {
	if discoveryPrefix == "" {
		discoveryPrefix = "homeassistant"
	}
	return &DiscoveryManager{
		publisher: publisher,
		prefix:    discoveryPrefix,
		version:   version,
	}
}

// ConfigTopic liefert das Discovery-Topic eines Sensors
func (dm *DiscoveryManager) ConfigTopic(objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", dm.prefix, ComponentSensor, NodeID, objectID)
}

// SensorFor erstellt die Sensor-Konfiguration für eine Operation.
// Der Zustand ist der HTTP-Status der letzten Anfrage, das Ereignis liefert die Attribute.
func (dm *DiscoveryManager) SensorFor(op facerecognition.Operation) SensorConfig {
	topic := dm.publisher.EventTopic(string(op))
	return SensorConfig{
		Name:                fmt.Sprintf("DeepFace Gateway %s", op),
		UniqueID:            fmt.Sprintf("%s_%s", NodeID, op),
		StateTopic:          topic,
		JSONAttributesTopic: topic,
		ValueTemplate:       "{{ value_json.status }}",
		Icon:                "mdi:face-recognition",
		AvailabilityTopic:   dm.publisher.StatusTopic(),
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device: &Device{
			Identifiers:  []string{NodeID},
			Name:         "DeepFace Gateway",
			Manufacturer: "deepface-gateway",
			Model:        "HTTP gateway",
			SWVersion:    dm.version,
		},
	}
}

// Register veröffentlicht die Discovery-Konfigurationen aller Operationen
func (dm *DiscoveryManager) Register() error {
	var failed int
	for _, op := range []facerecognition.Operation{
		facerecognition.OperationAnalyze,
		facerecognition.OperationVerify,
		facerecognition.OperationRepresent,
	} {
		log.Infof("Registering Home Assistant sensor for %s", op)
		if err := dm.publisher.PublishRetain(dm.ConfigTopic(string(op)), dm.SensorFor(op)); err != nil {
			log.Errorf("Failed to register sensor for %s: %v", op, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to register %d Home Assistant sensors", failed)
	}
	return nil
}
