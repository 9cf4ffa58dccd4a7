package events

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config provides dispatcher settings.
type Config struct {
	Sinks struct {
		Webhook WebhookConfig `yaml:"webhook"`
		Redis   RedisConfig   `yaml:"redis"`
		Kafka   KafkaConfig   `yaml:"kafka"`
	} `yaml:"sinks"`
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds delivery attempts per sink.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// LoadConfig reads YAML from file path. If path is empty, returns zero value.
func LoadConfig(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	err = yaml.Unmarshal(data, &c)
	return c, err
}

// Build creates the enabled sinks and a dispatcher over them.
func Build(c Config, dlq DLQ) (*Dispatcher, error) {
	var sinks []Sink
	if s := NewWebhookSink(c.Sinks.Webhook); s != nil {
		sinks = append(sinks, s)
	}
	rs, err := NewRedisSink(c.Sinks.Redis)
	if err != nil {
		return nil, err
	}
	if rs != nil {
		sinks = append(sinks, rs)
	}
	ks, err := NewKafkaSink(c.Sinks.Kafka)
	if err != nil {
		return nil, err
	}
	if ks != nil {
		sinks = append(sinks, ks)
	}
	return NewDispatcher(c, dlq, sinks...), nil
}
