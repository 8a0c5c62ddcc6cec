package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/config"
)

// EventProducer 把房间事件写入 Kafka，key 为房间 ID，同一房间的事件落在同一个 partition
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewEventProducer(cfg *config.KafkaConfig, log *zap.Logger) (*EventProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}
	return newEventProducer(producer, cfg.Topic, log), nil
}

func newEventProducer(producer sarama.SyncProducer, topic string, log *zap.Logger) *EventProducer {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventProducer{producer: producer, topic: topic, log: log}
}

func (p *EventProducer) SendMessage(key string, message any) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到 kafka 失败: %w", err)
	}

	p.log.Debug("room event stored",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *EventProducer) Close() error {
	return p.producer.Close()
}
