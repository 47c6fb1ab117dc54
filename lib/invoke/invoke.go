// Package invoke hands payloads to the next function of a query.
package invoke

import (
	"context"

	"cirrus/pkg/execution"
	"cirrus/pkg/payload"

	"github.com/pkg/errors"
)

const (
	LocalInvokerName = "local"
	KafkaInvokerName = "kafka"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrUnknownInvoker  = errors.New("unknown invoker")
)

type Invoker interface {
	// Invoke delivers p to the function named target.
	Invoke(ctx context.Context, target string, p *payload.Payload) error
	Close() error
}

// Resolve picks the function that receives p. ok is false for terminal stages.
func Resolve(next execution.CloudFunction, p *payload.Payload, sel Selector) (target string, ok bool, err error) {
	switch next.Kind {
	case execution.SoloKind:
		return next.Name, true, nil
	case execution.ChorusKind:
		if next.GroupSize <= 0 {
			return "", false, errors.WithMessagef(execution.ErrInvalidCloudFunction, "chorus size %d", next.GroupSize)
		}
		i, err := sel.Select(p, next.GroupSize)
		if err != nil {
			return "", false, err
		}
		if i < 0 || i >= next.GroupSize {
			return "", false, errors.WithMessagef(ErrSelectorIndex, "%d not in [0, %d)", i, next.GroupSize)
		}
		return execution.MemberName(next.Name, i), true, nil
	default:
		return "", false, nil
	}
}
