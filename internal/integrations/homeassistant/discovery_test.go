package homeassistant

import (
	"errors"
	"testing"

	"deepface-gateway/internal/integrations/facerecognition"
)

type recordingPublisher struct {
	topics   []string
	payloads []interface{}
	err      error
}

func (p *recordingPublisher) PublishRetain(topic string, payload interface{}) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *recordingPublisher) StatusTopic() string { return "gw/status" }

func (p *recordingPublisher) EventTopic(op string) string { return "gw/" + op }

func TestRegisterPublishesOneSensorPerOperation(t *testing.T) {
	pub := &recordingPublisher{}
	dm := NewDiscoveryManager(pub, "", "1.2.3")

	if err := dm.Register(); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	want := []string{
		"homeassistant/sensor/deepface_gateway/analyze/config",
		"homeassistant/sensor/deepface_gateway/verify/config",
		"homeassistant/sensor/deepface_gateway/represent/config",
	}
	if len(pub.topics) != len(want) {
		t.Fatalf("published %d configs, want %d", len(pub.topics), len(want))
	}
	for i, topic := range want {
		if pub.topics[i] != topic {
			t.Errorf("topic[%d] = %s, want %s", i, pub.topics[i], topic)
		}
	}

	sensor := pub.payloads[1].(SensorConfig)
	if sensor.StateTopic != "gw/verify" || sensor.AvailabilityTopic != "gw/status" {
		t.Errorf("unexpected sensor topics: %+v", sensor)
	}
	if sensor.Device.SWVersion != "1.2.3" {
		t.Errorf("sw_version = %s", sensor.Device.SWVersion)
	}
}

func TestRegisterReportsFailures(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("not connected")}
	dm := NewDiscoveryManager(pub, "ha", "dev")

	if err := dm.Register(); err == nil {
		t.Fatal("expected error")
	}
	if dm.ConfigTopic(string(facerecognition.OperationAnalyze)) != "ha/sensor/deepface_gateway/analyze/config" {
		t.Errorf("unexpected config topic %s", dm.ConfigTopic("analyze"))
	}
}
