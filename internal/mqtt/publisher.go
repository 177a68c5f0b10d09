package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes module lifecycle events and simulation summaries to an
// MQTT broker. All publish methods are no-ops on a disabled or nil publisher.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// PublishModuleEvent announces a create/update/delete on
// <prefix>/modules/<id>.
func (p *Publisher) PublishModuleEvent(action string, id uint, name string) {
	if p == nil || !p.enabled {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"action":    action,
		"id":        id,
		"name":      name,
		"timestamp": time.Now().UTC(),
	})
	p.publish(fmt.Sprintf("%s/modules/%d", p.topicPrefix, id), payload)
}

// PublishSimulation announces a completed simulation on <prefix>/simulations.
func (p *Publisher) PublishSimulation(moduleID int, mode string, irradiance, temperature, pmp float64) {
	if p == nil || !p.enabled {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"module_id":   moduleID,
		"mode":        mode,
		"irradiance":  irradiance,
		"temperature": temperature,
		"pmp":         pmp,
		"timestamp":   time.Now().UTC(),
	})
	p.publish(p.topicPrefix+"/simulations", payload)
}

func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish to %s failed: %v", topic, token.Error())
		}
	}()
}

func (p *Publisher) Close() {
	if p == nil || !p.enabled {
		return
	}
	p.client.Disconnect(250)
}
