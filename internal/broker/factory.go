package broker

import (
	"log"
	"strings"

	"github.com/hfidelis/order-relay/internal/config"
)

// New creates a Broker based on the application configuration. If
// KAFKA_BROKERS is set, it returns a KafkaBroker; if BROKER_BACKEND=memory,
// an InMemoryBroker; otherwise it connects to RabbitMQ at RABBITMQ_URL.
func New(cfg *config.Config) (Broker, error) {
	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		log.Printf("broker: using KafkaBroker with brokers=%v group=%s", brokers, cfg.KafkaConsumerGroup)
		return NewKafkaBroker(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		})
	}

	if cfg.BrokerBackend == "memory" {
		log.Println("broker: using InMemoryBroker (BROKER_BACKEND=memory)")
		return NewInMemoryBroker(), nil
	}

	log.Printf("broker: using RabbitMQ at %s", cfg.RabbitURL)
	return NewAMQPBroker(cfg.RabbitURL)
}
