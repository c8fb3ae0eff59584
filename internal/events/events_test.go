package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cargobot/internal/shipment"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type fakeChannel struct {
	keys []string
	pubs []amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.pubs = append(f.pubs, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func sampleEvent() Event {
	return Event{
		Name:      ShipmentStatusChanged,
		Shipment:  shipment.Shipment{ID: "AB12CD34", Status: shipment.StatusTransit},
		OldStatus: shipment.StatusProcessing,
		NewStatus: shipment.StatusTransit,
		Actor:     "web",
		At:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisherKeysByShipment(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "AB12CD34", string(w.msgs[0].Key))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &doc))
	assert.Equal(t, "shipment.status_changed", doc["event"])
	assert.Equal(t, "processing", doc["old_status"])
	assert.Equal(t, "transit", doc["new_status"])
	assert.Equal(t, "AB12CD34", doc["shipment"].(map[string]any)["id"])
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: boom})
	assert.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), boom)
}

func TestRabbitMQPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p := NewRabbitMQPublisherWithChannel(ch, "shipments")
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	require.Len(t, ch.pubs, 1)
	assert.Equal(t, "shipments", ch.keys[0])
	assert.Equal(t, "application/json", ch.pubs[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.pubs[0].DeliveryMode)
	assert.Equal(t, ShipmentStatusChanged, ch.pubs[0].Type)
	require.NoError(t, p.Close())
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, DriverNone, cfg.Driver)
	assert.Equal(t, 5*time.Second, cfg.Timeout())

	cfg = Config{Driver: "Kafka", Brokers: []string{"localhost:9092"}}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, "cargobot.shipments", cfg.Topic)

	assert.Error(t, (&Config{Driver: "kafka"}).Normalize())
	assert.Error(t, (&Config{Driver: "rabbitmq"}).Normalize())
	assert.Error(t, (&Config{Driver: "nats"}).Normalize())

	p, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
}
