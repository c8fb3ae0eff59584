// Package events publishes shipment domain events to Kafka or RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/cargobot/internal/shipment"
)

// Event names.
const (
	ShipmentCreated       = "shipment.created"
	ShipmentStatusChanged = "shipment.status_changed"
)

// Drivers accepted by Config.Driver.
const (
	DriverNone     = "none"
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
)

// Event is the JSON document written to the broker, keyed by shipment id.
type Event struct {
	Name      string            `json:"event"`
	Shipment  shipment.Shipment `json:"shipment"`
	OldStatus shipment.Status   `json:"old_status,omitempty"`
	NewStatus shipment.Status   `json:"new_status,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	At        time.Time         `json:"at"`
}

// Key is the partitioning key.
func (e Event) Key() string { return e.Shipment.ID }

// Encode renders the event as JSON.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Name, err)
	}
	return b, nil
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Config selects and configures the broker.
type Config struct {
	Driver  string   `yaml:"driver" envconfig:"EVENTS_DRIVER"`
	Brokers []string `yaml:"brokers" envconfig:"EVENTS_KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"EVENTS_KAFKA_TOPIC"`
	AMQPURL string   `yaml:"amqp_url" envconfig:"EVENTS_AMQP_URL"`
	Queue   string   `yaml:"queue" envconfig:"EVENTS_AMQP_QUEUE"`
	// TimeoutMS bounds a single publish call.
	TimeoutMS int `yaml:"timeout_ms" envconfig:"EVENTS_TIMEOUT_MS"`
}

// Normalize validates the driver and fills defaults.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverNone
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
	switch c.Driver {
	case DriverNone:
	case DriverKafka:
		if len(c.Brokers) == 0 {
			return fmt.Errorf("events.brokers is required for kafka")
		}
		if c.Topic == "" {
			c.Topic = "cargobot.shipments"
		}
	case DriverRabbitMQ:
		if c.AMQPURL == "" {
			return fmt.Errorf("events.amqp_url is required for rabbitmq")
		}
		if c.Queue == "" {
			c.Queue = "cargobot.shipments"
		}
	default:
		return fmt.Errorf("invalid events.driver %q; allowed: none, kafka, rabbitmq", c.Driver)
	}
	return nil
}

// Timeout returns the per-publish deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// New builds the publisher selected by cfg.
func New(cfg Config) (Publisher, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverKafka:
		return NewKafkaPublisher(cfg.Brokers, cfg.Topic), nil
	case DriverRabbitMQ:
		return DialRabbitMQ(cfg.AMQPURL, cfg.Queue)
	}
	return Noop{}, nil
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
