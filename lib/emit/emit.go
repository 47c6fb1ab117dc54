// Package emit fans the output of a terminal function out to sinks.
package emit

import (
	"regexp"
	"sort"

	"cirrus/cirrus"

	"github.com/pkg/errors"
)

var ErrNoOutputs = errors.New("outputs match no sink")

// Select returns the emits of the sinks whose name matches any of outputs,
// ordered by sink name. No outputs selects every sink.
func Select(sinks map[string]cirrus.Emit, outputs []string) ([]cirrus.Emit, error) {
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(outputs) == 0 {
		emits := make([]cirrus.Emit, 0, len(names))
		for _, name := range names {
			emits = append(emits, sinks[name])
		}
		return emits, nil
	}

	patterns := make([]*regexp.Regexp, 0, len(outputs))
	for _, output := range outputs {
		compiled, err := regexp.Compile(output)
		if err != nil {
			return nil, errors.WithMessagef(err, "output %s can't compile", output)
		}
		patterns = append(patterns, compiled)
	}
	var emits []cirrus.Emit
	for _, name := range names {
		for _, pattern := range patterns {
			if pattern.MatchString(name) {
				emits = append(emits, sinks[name])
				break
			}
		}
	}
	if len(emits) == 0 {
		return nil, errors.WithMessagef(ErrNoOutputs, "%v", outputs)
	}
	return emits, nil
}

// Replicating hands every output to all emits.
func Replicating(emits ...cirrus.Emit) cirrus.Emit {
	return func(out *cirrus.Output) {
		for _, emit := range emits {
			emit(out)
		}
	}
}
