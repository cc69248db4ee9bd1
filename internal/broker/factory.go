package broker

import (
	"fmt"

	"hush/internal/config"
	"hush/internal/constants"
	"hush/internal/logger"
)

// NewProducer returns nil without error when the broker is disabled.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case constants.BrokerTypeNATS:
		nc, err := ConnectNATS(cfg.NATS, constants.ServiceName+"-producer", log)
		if err != nil {
			return nil, err
		}
		return NewNATSProducer(nc, true, log), nil
	case constants.BrokerTypeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// NewConsumer returns nil without error when the broker is disabled.
func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaConsumer(cfg, log), nil
	case constants.BrokerTypeNATS:
		nc, err := ConnectNATS(cfg.NATS, constants.ServiceName+"-consumer", log)
		if err != nil {
			return nil, err
		}
		return NewNATSConsumer(nc, true, cfg, log), nil
	case constants.BrokerTypeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
