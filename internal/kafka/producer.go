package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"parcel-tracking/internal/config"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer представляет Kafka producer
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает новый Kafka producer
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll       // Ждем подтверждения от всех реплик
	config.Producer.Retry.Max = 3                          // Максимум 3 попытки
	config.Producer.Return.Successes = true                // Возвращаем успешные результаты
	config.Producer.Compression = sarama.CompressionSnappy // Сжатие данных

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info("Kafka producer created successfully")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// PublishParcelStatusChanged публикует событие изменения статуса посылки
func (p *Producer) PublishParcelStatusChanged(ev *models.ParcelStatusChangedEvent) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeParcelStatusChanged,
		Timestamp: time.Now(),
		Data:      ev,
	}

	return p.publishEvent(p.topics.Parcels, event)
}

// PublishParcelCourierAssigned публикует событие назначения курьера
func (p *Producer) PublishParcelCourierAssigned(ev *models.ParcelCourierAssignedEvent) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeParcelCourierAssigned,
		Timestamp: time.Now(),
		Data:      ev,
	}

	return p.publishEvent(p.topics.Couriers, event)
}

// PublishLocationUpdated публикует событие обновления позиции курьера
func (p *Producer) PublishLocationUpdated(courierID uuid.UUID, lat, lng float64) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeLocationUpdated,
		Timestamp: time.Now(),
		Data: models.LocationUpdatedEvent{
			CourierID: courierID,
			Lat:       lat,
			Lng:       lng,
			Timestamp: time.Now(),
		},
	}

	return p.publishEvent(p.topics.Locations, event)
}

// publishEvent публикует событие в указанный топик
func (p *Producer) publishEvent(topic string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.Type),
			},
			{
				Key:   []byte("timestamp"),
				Value: []byte(event.Timestamp.Format(time.RFC3339)),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithField("topic", topic).
		WithField("partition", partition).
		WithField("offset", offset).
		WithField("event_type", event.Type).
		WithField("event_id", event.ID).
		Debug("Event published successfully")

	return nil
}
