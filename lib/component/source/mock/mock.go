package mock

import (
	"math/rand"
	"sync"
	"time"

	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/log"
	"cirrus/lib/properties"
	"cirrus/pkg/encoding"
	"cirrus/pkg/payload"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

var (
	SpecProperty      = properties.NewProperty[string]("spec", "cron spec, one window per shuffle is generated on every tick", "@every 1s")
	FragmentsProperty = properties.NewProperty[int]("fragments", "fragments per window", 4)
	RowsProperty      = properties.NewProperty[int]("rows", "rows per fragment", 16)
	ShufflesProperty  = properties.NewProperty[int]("shuffles", "windows per tick", 1)
	AuctionsProperty  = properties.NewProperty[int]("auctions", "distinct auction ids", 8)
	EncodingProperty  = properties.NewProperty[string]("encoding", "payload encoding", string(encoding.None))

	// BidSchema is the schema of generated records.
	BidSchema = arrow.NewSchema([]arrow.Field{
		{Name: "auction", Type: arrow.PrimitiveTypes.Int64},
		{Name: "bidder", Type: arrow.PrimitiveTypes.Int64},
		{Name: "price", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
)

type source struct {
	ctx       cirrus.Context
	logger    cirrus.Logger
	emitNext  cirrus.EmitNext
	spec      string
	fragments int
	rows      int
	shuffles  int
	auctions  int
	encoding  encoding.Encoding

	mu  sync.Mutex
	rng *rand.Rand
}

func (s *source) PropertiesDef() cirrus.PropertiesDef {
	return cirrus.PropertiesDef{SpecProperty, FragmentsProperty, RowsProperty, ShufflesProperty, AuctionsProperty, EncodingProperty}
}

func (s *source) Open(ctx cirrus.Context) error {
	s.ctx = ctx
	s.logger = log.Ctx(ctx)
	s.spec = ctx.Properties().GetString(SpecProperty)
	s.fragments = ctx.Properties().GetInt(FragmentsProperty)
	s.rows = ctx.Properties().GetInt(RowsProperty)
	s.shuffles = ctx.Properties().GetInt(ShufflesProperty)
	s.auctions = ctx.Properties().GetInt(AuctionsProperty)
	s.encoding = encoding.Encoding(ctx.Properties().GetString(EncodingProperty))
	if s.fragments <= 0 || s.rows <= 0 || s.shuffles <= 0 || s.auctions <= 0 {
		return errors.New("fragments, rows, shuffles and auctions must be positive")
	}
	s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	return s.encoding.Validate()
}

// Collect emits generated windows until the context is done.
func (s *source) Collect(emitNext cirrus.EmitNext) error {
	s.emitNext = emitNext
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.spec, s.tick); err != nil {
		return errors.WithMessagef(err, "invalid spec %q", s.spec)
	}
	c.Start()
	<-s.ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *source) tick() {
	queryID := payload.NewUuidBuilderWithTs(s.ctx.Name(), 0, s.fragments).QueryID()
	for shuffle := 0; shuffle < s.shuffles; shuffle++ {
		fragments, err := s.window(payload.NewUuidBuilder(queryID, shuffle, s.fragments))
		if err != nil {
			s.logger.Errorw("generate window failed.", "query", queryID, "shuffle", shuffle, "err", err)
			continue
		}
		for _, p := range fragments {
			s.emitNext(p, nil)
		}
	}
	s.logger.Debugw("windows generated.", "query", queryID, "shuffles", s.shuffles)
}

// window builds every fragment of one window in a random arrival order.
func (s *source) window(b *payload.UuidBuilder) ([]*payload.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*payload.Payload, 0, b.Len())
	for _, seq := range s.rng.Perm(b.Len()) {
		record := s.bids()
		p, err := payload.New([]arrow.Record{record}, nil, b.Get(seq+1), s.encoding)
		record.Release()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *source) bids() arrow.Record {
	rb := array.NewRecordBuilder(memory.DefaultAllocator, BidSchema)
	defer rb.Release()
	for i := 0; i < s.rows; i++ {
		rb.Field(0).(*array.Int64Builder).Append(int64(s.rng.Intn(s.auctions)))
		rb.Field(1).(*array.Int64Builder).Append(s.rng.Int63n(1000))
		rb.Field(2).(*array.Float64Builder).Append(float64(s.rng.Intn(10000)) / 100)
	}
	return rb.NewRecord()
}

func (s *source) Close() error {
	return nil
}

// New returns a mock source generating random bids.
func New() cirrus.Source {
	return &source{}
}

func init() {
	component.RegisterNewSourceFunc("mock", New)
}
