package main

import (
	"text/template"
	"time"

	"cirrus/lib/component/source/mock"
	"cirrus/pkg/encoding"
	"cirrus/pkg/execution"
	"cirrus/pkg/plan"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const sampleQuery = "SELECT auction, max(price) FROM bid WHERE price >= 10 GROUP BY auction"

var sampleTemplate = template.Must(template.New("sample").Parse(`global:
  log-level: info
  selector: hash
  encoding: {{.Encoding}}
function:
  filter:
    context: '{{.Filter}}'
{{- range $i, $c := .Aggregates}}
  max-{{$i}}:
    context: '{{$c}}'
{{- end}}
source:
  bids:
    type: mock
    target: {{.Target}}
    fragments: 4
    shuffles: {{.Size}}
sink:
  echo:
    type: echo
`))

type sample struct {
	Encoding   encoding.Encoding
	Target     string
	Size       int
	Filter     string
	Aggregates []string
}

// newSample plans a filter stage feeding a chorus of aggregation stages.
func newSample(size int, enc encoding.Encoding, now time.Time) (*sample, error) {
	code := execution.QueryCode(sampleQuery)
	filterName := execution.FunctionName(code, 0, now)
	aggPrefix := execution.FunctionName(code, 1, now)

	scan, err := plan.NewMemoryExec(mock.BidSchema, nil)
	if err != nil {
		return nil, err
	}
	filter, err := plan.NewFilterExec(scan, plan.Predicate{Column: 2, Op: plan.Ge, Value: 10})
	if err != nil {
		return nil, err
	}
	s := &sample{Encoding: enc, Target: filterName, Size: size}
	s.Filter, err = (&execution.ExecutionContext{Plan: filter, Name: filterName, Next: execution.Chorus(aggPrefix, size)}).Marshal(enc)
	if err != nil {
		return nil, err
	}
	for i := 0; i < size; i++ {
		scan, err := plan.NewMemoryExec(mock.BidSchema, nil)
		if err != nil {
			return nil, err
		}
		agg, err := plan.NewHashAggregateExec(scan, 0, []plan.Aggregate{{Func: plan.Max, Column: 2}})
		if err != nil {
			return nil, err
		}
		c, err := (&execution.ExecutionContext{Plan: agg, Name: execution.MemberName(aggPrefix, i)}).Marshal(enc)
		if err != nil {
			return nil, err
		}
		s.Aggregates = append(s.Aggregates, c)
	}
	return s, nil
}

func init() {
	var size int
	var enc string
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "print a sample config.",
		Long:  `print a runnable config, a mock bid source feeds a filter function whose output is aggregated by a chorus of functions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if size <= 0 {
				return errors.Errorf("group size must be positive, got %d", size)
			}
			e := encoding.Encoding(enc)
			if err := e.Validate(); err != nil {
				return err
			}
			s, err := newSample(size, e, time.Now())
			if err != nil {
				return err
			}
			return sampleTemplate.Execute(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().IntVar(&size, "group-size", 2, "members of the aggregation chorus")
	cmd.Flags().StringVar(&enc, "encoding", string(encoding.Snappy), "encoding of the execution contexts")
	Command.AddCommand(cmd)
}
