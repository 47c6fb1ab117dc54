package invoke

import (
	"context"
	"regexp"

	"cirrus/pkg/payload"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

var illegalTopic = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Topic is the kafka topic of a function, characters kafka rejects in topic
// names become '_'.
func Topic(function string) string {
	return illegalTopic.ReplaceAllString(function, "_")
}

// KafkaInvoker publishes payloads to the topic of the target function, keyed
// by query id so a query keeps its partition.
type KafkaInvoker struct {
	producer sarama.SyncProducer
}

func NewKafkaInvoker(brokers []string, config *sarama.Config) (*KafkaInvoker, error) {
	if config == nil {
		config = sarama.NewConfig()
	}
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.WithMessage(err, "can't create kafka producer")
	}
	return NewKafkaInvokerWithProducer(producer), nil
}

func NewKafkaInvokerWithProducer(producer sarama.SyncProducer) *KafkaInvoker {
	return &KafkaInvoker{producer: producer}
}

func (k *KafkaInvoker) Invoke(ctx context.Context, target string, p *payload.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := p.Marshal()
	if err != nil {
		return errors.WithMessage(err, "can't marshal payload")
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: Topic(target),
		Key:   sarama.StringEncoder(p.UUID.Tid),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return errors.WithMessagef(err, "can't invoke %s", target)
	}
	return nil
}

func (k *KafkaInvoker) Close() error {
	return k.producer.Close()
}
