package mqtt

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// discoveryPayload follows the Home Assistant MQTT discovery schema.
type discoveryPayload struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	ValueTemplate     string     `json:"value_template"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	Device            deviceInfo `json:"device"`
}

type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

// AnnounceCameras publishes retained discovery configs so Home
// Assistant creates mode and interval sensors for each camera. Called
// on connect and after every reload.
func (p *Publisher) AnnounceCameras(cameras []string) {
	if p == nil || !p.client.IsConnected() {
		return
	}
	for _, name := range cameras {
		device := deviceInfo{
			Identifiers:  []string{p.cfg.BaseTopic + "_" + name},
			Name:         "Lucarne " + name,
			Manufacturer: "lucarne",
		}
		sensors := []struct {
			suffix   string
			label    string
			template string
			unit     string
			icon     string
		}{
			{"mode", "Mode", "{{ value_json.mode }}", "", "mdi:theme-light-dark"},
			{"interval", "Capture interval", "{{ value_json.interval_s }}", "s", "mdi:camera-timer"},
			{"ssim", "SSIM", "{{ value_json.last_ssim }}", "", "mdi:image-multiple"},
		}
		for _, s := range sensors {
			topic := fmt.Sprintf("%s/sensor/%s_%s/%s/config",
				p.cfg.DiscoveryPrefix, p.cfg.BaseTopic, name, s.suffix)
			payload := discoveryPayload{
				Name:              fmt.Sprintf("%s %s", name, s.label),
				UniqueID:          fmt.Sprintf("%s_%s_%s", p.cfg.BaseTopic, name, s.suffix),
				StateTopic:        p.stateTopic(name),
				AvailabilityTopic: p.availabilityTopic(),
				ValueTemplate:     s.template,
				UnitOfMeasurement: s.unit,
				Icon:              s.icon,
				Device:            device,
			}
			data, err := json.Marshal(payload)
			if err != nil {
				log.Errorf("Failed to marshal discovery payload: %v", err)
				continue
			}
			p.client.Publish(topic, 0, true, data)
		}
	}
	log.Infof("Announced %d cameras via MQTT discovery", len(cameras))
}
