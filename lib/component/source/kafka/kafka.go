package kafka

import (
	"strconv"
	"sync"
	"time"

	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/invoke"
	"cirrus/lib/log"
	"cirrus/lib/properties"
	"cirrus/pkg/constant"
	"cirrus/pkg/datasource"
	"cirrus/pkg/payload"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

var (
	TopicsProperty                = properties.NewProperty[[]string]("topics", "topics carrying payloads, empty means the topic of the target function", []string{})
	VersionProperty               = properties.NewProperty[string]("version", "kafka version", "2.4.0")
	BrokersProperty               = properties.NewRequiredProperty[[]string]("brokers", "kafka brokers")
	ClientIdProperty              = properties.NewProperty[string]("client.id", "client id", "")
	GroupIdProperty               = properties.NewProperty[string]("group.id", "consumer group id", "cirrus")
	OffsetsCommitIntervalProperty = properties.NewProperty[int]("offsets.commit.interval", "kafka commit interval sec", 5)
	OffsetsInitial                = properties.NewProperty[string]("offsets.initial", "newest or oldest", "oldest")

	SASLUserProperty     = properties.NewProperty[string]("sasl-username", "", "")
	SASLPasswordProperty = properties.NewProperty[string]("sasl-password", "", "")
)

type source struct {
	ctx           cirrus.Context
	logger        cirrus.Logger
	emitNext      cirrus.EmitNext
	consumerGroup sarama.ConsumerGroup
	topics        []string
}

func (s *source) Open(ctx cirrus.Context) error {
	s.ctx = ctx
	s.logger = log.Ctx(s.ctx)

	config := sarama.NewConfig()
	version, err := sarama.ParseKafkaVersion(s.ctx.Properties().GetString(VersionProperty))
	if err != nil {
		return err
	}
	config.Version = version
	//sasl
	saslUser := s.ctx.Properties().GetString(SASLUserProperty)
	saslPassword := s.ctx.Properties().GetString(SASLPasswordProperty)
	if saslUser != "" && saslPassword != "" {
		config.Net.SASL.User = saslUser
		config.Net.SASL.Password = saslPassword
		config.Net.SASL.Enable = true
	}
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.AutoCommit.Interval = time.Duration(s.ctx.Properties().GetInt(OffsetsCommitIntervalProperty)) * time.Second
	if s.ctx.Properties().GetString(OffsetsInitial) == "newest" {
		config.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	//clientId
	clientId := s.ctx.Properties().GetString(ClientIdProperty)
	if clientId != "" {
		config.ClientID = clientId
	}

	s.topics = s.ctx.Properties().GetStringSlice(TopicsProperty)
	if len(s.topics) == 0 {
		s.topics = []string{invoke.Topic(s.ctx.Properties().GetString(constant.TargetProperty))}
	}
	s.consumerGroup, err = sarama.NewConsumerGroup(s.ctx.Properties().GetStringSlice(BrokersProperty), s.ctx.Properties().GetString(GroupIdProperty), config)
	if err != nil {
		return err
	}
	s.handleErrors()
	return nil
}

func (s *source) Close() error {
	if s.consumerGroup == nil {
		return nil
	}
	var err error
	for i := 1; i < 4; i++ {
		err = s.consumerGroup.Close()
		if err != nil {
			s.logger.Warnw("close kafka consumer error, waiting 1 second.", "time", i, "err", err)
			time.Sleep(1 * time.Second)
		} else {
			return nil
		}
	}
	return errors.WithMessage(err, "can't close kafka consumer")
}

func (s *source) PropertiesDef() cirrus.PropertiesDef {
	return cirrus.PropertiesDef{TopicsProperty, VersionProperty, BrokersProperty, ClientIdProperty, GroupIdProperty,
		OffsetsCommitIntervalProperty, OffsetsInitial, SASLUserProperty, SASLPasswordProperty}
}

func (s *source) Collect(emitNext cirrus.EmitNext) error {
	s.emitNext = emitNext
	for {
		select {
		case <-s.ctx.Done():
			return nil
		default:
			if err := s.consumerGroup.Consume(s.ctx.Ctx(), s.topics, s); err != nil {
				return errors.WithMessage(err, "can't collect kafka")
			}
		}
	}
}

func (s *source) Setup(_ sarama.ConsumerGroupSession) error {
	s.logger.Infof("set up...")
	return nil
}

func (s *source) Cleanup(_ sarama.ConsumerGroupSession) error {
	s.logger.Infof("clean up...")
	return nil
}

func (s *source) handleErrors() {
	go func() {
		for err := range s.consumerGroup.Errors() {
			select {
			case <-s.ctx.Done():
				s.logger.Infof("shutdown handle errors.")
				return
			default:
				s.logger.Errorw("received error.", "err", err)
			}
		}
	}()
}

// ConsumeClaim decodes one payload per message. Undecodable messages are
// marked so they are not redelivered forever.
func (s *source) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	acks := &claimAcks{session: session}
	for message := range claim.Messages() {
		pending := acks.track(message)
		p, err := payload.Unmarshal(message.Value)
		if err != nil {
			s.logger.Errorw("drop malformed payload.", "topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "err", err)
			acks.ack(pending)
			continue
		}
		p.DataSource = datasource.New(datasource.Kafka, map[string]string{
			"topic":     message.Topic,
			"partition": strconv.Itoa(int(message.Partition)),
			"offset":    strconv.FormatInt(message.Offset, 10),
		})
		s.emitNext(p, func() {
			acks.ack(pending)
		})
	}
	return nil
}

// claimAcks marks the messages of one claim in offset order. A message is
// marked once it and every message before it are acked, an unacked message
// holds back the committed offset so it is redelivered.
type claimAcks struct {
	mu      sync.Mutex
	session sarama.ConsumerGroupSession
	pending []*pendingMessage
}

type pendingMessage struct {
	message *sarama.ConsumerMessage
	acked   bool
}

func (c *claimAcks) track(message *sarama.ConsumerMessage) *pendingMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &pendingMessage{message: message}
	c.pending = append(c.pending, p)
	return p
}

func (c *claimAcks) ack(p *pendingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.acked = true
	for len(c.pending) > 0 && c.pending[0].acked {
		c.session.MarkMessage(c.pending[0].message, "")
		c.pending = c.pending[1:]
	}
}

func New() cirrus.Source {
	return &source{}
}

func init() {
	component.RegisterNewSourceFunc("kafka", New)
}
