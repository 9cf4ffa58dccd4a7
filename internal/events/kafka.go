package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

// KafkaConfig configures KafkaSink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// KafkaSink publishes events to Kafka keyed by Event.Key, so events of one
// model stay ordered within a partition.
type KafkaSink struct {
	Producer sarama.AsyncProducer
	Topic    string
}

// NewKafkaSink creates a KafkaSink from config, nil when disabled.
func NewKafkaSink(c KafkaConfig) (*KafkaSink, error) {
	if !c.Enabled || len(c.Brokers) == 0 {
		return nil, nil
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Errors = true
	prod, err := sarama.NewAsyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{Producer: prod, Topic: c.Topic}, nil
}

func (s *KafkaSink) Emit(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: s.Topic, Value: sarama.ByteEncoder(data)}
	if e.Key != "" {
		msg.Key = sarama.StringEncoder(e.Key)
	}
	select {
	case s.Producer.Input() <- msg:
		return nil
	case perr := <-s.Producer.Errors():
		return perr.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() error { return s.Producer.Close() }
