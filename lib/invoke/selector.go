package invoke

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"cirrus/pkg/payload"

	"github.com/cespare/xxhash/v2"
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/pkg/errors"
)

const (
	HashSelectorName       = "hash"
	RoundRobinSelectorName = "round-robin"
	RandomSelectorName     = "random"
	ScriptSelectorName     = "script"
)

var (
	ErrUnknownSelector = errors.New("unknown selector")
	ErrSelectorIndex   = errors.New("selected index out of range")
)

// Selector picks one member of a chorus group of size for p.
type Selector interface {
	Select(p *payload.Payload, size int) (int, error)
}

// HashSelector sends all windows of one query and shuffle partition to the
// same member.
type HashSelector struct{}

func (HashSelector) Select(p *payload.Payload, size int) (int, error) {
	h := xxhash.New()
	_, _ = h.WriteString(p.UUID.Tid)
	_, _ = h.Write([]byte{byte(p.UUID.ShuffleID >> 24), byte(p.UUID.ShuffleID >> 16), byte(p.UUID.ShuffleID >> 8), byte(p.UUID.ShuffleID)})
	return int(h.Sum64() % uint64(size)), nil
}

type RoundRobinSelector struct {
	next uint64
}

func (r *RoundRobinSelector) Select(_ *payload.Payload, size int) (int, error) {
	n := atomic.AddUint64(&r.next, 1) - 1
	return int(n % uint64(size)), nil
}

type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomSelector) Select(_ *payload.Payload, size int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(size), nil
}

// ScriptSelector runs a tengo script with query_id, shuffle_id and size
// defined, the script assigns the member to index.
type ScriptSelector struct {
	compiled *tengo.Compiled
	mu       sync.Mutex
}

func NewScriptSelector(script string) (*ScriptSelector, error) {
	s := tengo.NewScript([]byte(script))
	s.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))
	for name, value := range map[string]interface{}{"query_id": "", "shuffle_id": 0, "size": 1, "index": 0} {
		if err := s.Add(name, value); err != nil {
			return nil, errors.WithMessagef(err, "can't add %s to script", name)
		}
	}
	compiled, err := s.Compile()
	if err != nil {
		return nil, errors.WithMessage(err, "can't compile selector script")
	}
	return &ScriptSelector{compiled: compiled}, nil
}

func (s *ScriptSelector) Select(p *payload.Payload, size int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range map[string]interface{}{"query_id": p.UUID.Tid, "shuffle_id": p.UUID.ShuffleID, "size": size} {
		if err := s.compiled.Set(name, value); err != nil {
			return 0, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.compiled.RunContext(ctx); err != nil {
		return 0, errors.WithMessage(err, "run selector script error")
	}
	return s.compiled.Get("index").Int(), nil
}

// NewSelector builds a selector by name, script is only used by the script selector.
func NewSelector(name, script string) (Selector, error) {
	switch name {
	case HashSelectorName:
		return HashSelector{}, nil
	case RoundRobinSelectorName:
		return &RoundRobinSelector{}, nil
	case RandomSelectorName:
		return NewRandomSelector(time.Now().UnixNano()), nil
	case ScriptSelectorName:
		return NewScriptSelector(script)
	default:
		return nil, errors.WithMessagef(ErrUnknownSelector, "%q", name)
	}
}
