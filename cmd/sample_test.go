package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cirrus/lib/properties"
	"cirrus/pkg/constant"
	"cirrus/pkg/encoding"
	"cirrus/pkg/execution"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	s, err := newSample(3, encoding.Zstd, now)
	require.NoError(t, err)
	require.Len(t, s.Aggregates, 3)

	filter, err := execution.Unmarshal(s.Filter)
	require.NoError(t, err)
	assert.Equal(t, s.Target, filter.Name)
	assert.Equal(t, execution.ChorusKind, filter.Next.Kind)
	assert.Equal(t, 3, filter.Next.GroupSize)

	code, index, ts, err := execution.ParseFunctionName(filter.Name)
	require.NoError(t, err)
	assert.Equal(t, execution.QueryCode(sampleQuery), code)
	assert.Equal(t, 0, index)
	assert.True(t, now.Equal(ts))

	for i, c := range s.Aggregates {
		agg, err := execution.Unmarshal(c)
		require.NoError(t, err)
		assert.Equal(t, filter.Next.Targets()[i], agg.Name)
		assert.True(t, agg.Next.IsNone())
	}
}

func TestSampleConfigIsReadable(t *testing.T) {
	s, err := newSample(2, encoding.Snappy, time.Now())
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	require.NoError(t, sampleTemplate.Execute(buf, s))

	ps, err := properties.Read("yaml", strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"filter", "max-0", "max-1"}, ps.PrefixKeys("function"))
	assert.Equal(t, s.Aggregates[1], ps.Sub("function.max-1").GetString(constant.ContextProperty))
	assert.Equal(t, s.Target, ps.Sub("source.bids").GetString(constant.TargetProperty))
}
