package kafka

import (
	_c "context"
	"testing"

	"cirrus/cirrus"
	"cirrus/lib/log"
	"cirrus/pkg/datasource"
	"cirrus/pkg/encoding"
	"cirrus/pkg/payload"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	marked []int64
}

func (s *session) Claims() map[string][]int32                        { return nil }
func (s *session) MemberID() string                                  { return "member" }
func (s *session) GenerationID() int32                               { return 1 }
func (s *session) MarkOffset(string, int32, int64, string)           {}
func (s *session) Commit()                                           {}
func (s *session) ResetOffset(string, int32, int64, string)          {}
func (s *session) MarkMessage(msg *sarama.ConsumerMessage, _ string) { s.marked = append(s.marked, msg.Offset) }
func (s *session) Context() _c.Context                               { return _c.Background() }

type claim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "agg" }
func (c *claim) Partition() int32                         { return 0 }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 3 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaim(t *testing.T) {
	b := payload.NewUuidBuilder("q", 0, 2)
	var values [][]byte
	for i := 1; i <= 2; i++ {
		p, err := payload.New(nil, nil, b.Get(i), encoding.None)
		require.NoError(t, err)
		v, err := p.Marshal()
		require.NoError(t, err)
		values = append(values, v)
	}

	c := &claim{messages: make(chan *sarama.ConsumerMessage, 3)}
	c.messages <- &sarama.ConsumerMessage{Topic: "agg", Offset: 0, Value: values[0]}
	c.messages <- &sarama.ConsumerMessage{Topic: "agg", Offset: 1, Value: []byte("garbage")}
	c.messages <- &sarama.ConsumerMessage{Topic: "agg", Offset: 2, Value: values[1]}
	close(c.messages)

	var (
		received []*payload.Payload
		acks     []cirrus.ACKHandler
	)
	s := &source{logger: log.Named("kafka")}
	s.emitNext = func(p *payload.Payload, handler cirrus.ACKHandler) {
		received = append(received, p)
		acks = append(acks, handler)
	}
	sess := &session{}
	require.NoError(t, s.ConsumeClaim(sess, c))

	require.Len(t, received, 2)
	assert.Equal(t, b.Get(1), received[0].UUID)
	assert.Equal(t, b.Get(2), received[1].UUID)
	assert.Equal(t, datasource.Kafka, received[1].DataSource.Kind)
	assert.Equal(t, 2, datasource.GetAsOr(received[1].DataSource, "offset", -1))
	assert.Empty(t, sess.marked)

	acks[0]()
	assert.Equal(t, []int64{0, 1}, sess.marked)
	acks[1]()
	assert.Equal(t, []int64{0, 1, 2}, sess.marked)
}

func TestUnackedPayloadHoldsOffset(t *testing.T) {
	b := payload.NewUuidBuilder("q", 0, 3)
	c := &claim{messages: make(chan *sarama.ConsumerMessage, 3)}
	for i := 1; i <= 3; i++ {
		p, err := payload.New(nil, nil, b.Get(i), encoding.None)
		require.NoError(t, err)
		v, err := p.Marshal()
		require.NoError(t, err)
		c.messages <- &sarama.ConsumerMessage{Topic: "agg", Offset: int64(i + 9), Value: v}
	}
	close(c.messages)

	var acks []cirrus.ACKHandler
	s := &source{logger: log.Named("kafka")}
	s.emitNext = func(p *payload.Payload, handler cirrus.ACKHandler) {
		acks = append(acks, handler)
	}
	sess := &session{}
	require.NoError(t, s.ConsumeClaim(sess, c))
	require.Len(t, acks, 3)

	// the second payload failed, its handler never acks
	acks[0]()
	acks[2]()
	assert.Equal(t, []int64{10}, sess.marked)
}
