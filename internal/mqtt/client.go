package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
	"lucarne/internal/registry"
)

var (
	// NewClientFunc is swappable for tests.
	NewClientFunc = mqtt.NewClient
)

// Publisher pushes camera state to an MQTT broker and announces the
// cameras to Home Assistant via its discovery convention. A nil
// *Publisher is valid and ignores all calls.
type Publisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client
}

// NewPublisher creates the publisher, or nil when MQTT is disabled.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	if !cfg.Enabled {
		log.Info("MQTT publisher is disabled in the configuration.")
		return nil
	}

	p := &Publisher{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetWill(p.availabilityTopic(), "offline", 0, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Infof("Connected to MQTT broker %s:%d", cfg.Broker, cfg.Port)
		c.Publish(p.availabilityTopic(), 0, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("MQTT connection lost: %v. Reconnecting...", err)
	})

	p.client = NewClientFunc(opts)
	return p
}

// Start connects to the broker. An initial connection failure is not
// fatal; auto-reconnect keeps trying.
func (p *Publisher) Start() error {
	if p == nil {
		return nil
	}
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Initial MQTT connect failed: %v", token.Error())
		return token.Error()
	}
	return nil
}

// Stop announces unavailability and disconnects.
func (p *Publisher) Stop() {
	if p == nil || !p.client.IsConnected() {
		return
	}
	p.client.Publish(p.availabilityTopic(), 0, true, "offline").Wait()
	p.client.Disconnect(250)
}

func (p *Publisher) availabilityTopic() string {
	return p.cfg.BaseTopic + "/availability"
}

func (p *Publisher) stateTopic(camera string) string {
	return p.cfg.BaseTopic + "/" + camera + "/state"
}

// PublishState pushes one camera's state as retained JSON so late
// subscribers see the current value immediately.
func (p *Publisher) PublishState(st registry.State) {
	if p == nil || !p.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		log.Errorf("Failed to marshal MQTT state for %s: %v", st.Name, err)
		return
	}
	p.client.Publish(p.stateTopic(st.Name), 0, true, payload)
}
