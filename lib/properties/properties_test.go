package properties

import (
	"strings"
	"testing"
	"time"

	"cirrus/cirrus"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const config = `
global:
  log-level: debug
  pool-size: 4
function:
  agg:
    context: '{"context":"e30=","encoding":"None"}'
source:
  bids:
    type: mock
    interval: 2s
  audit:
    type: spooldir
`

var (
	typeProperty     = NewRequiredProperty[string]("type", "component type")
	intervalProperty = NewProperty[time.Duration]("interval", "tick interval", time.Second)
	fragmentProperty = NewProperty[int]("fragments", "fragments per window", 4)
	brokersProperty  = NewProperty[[]string]("brokers", "kafka brokers", nil)
)

func read(t *testing.T) *properties {
	p, err := Read("yaml", strings.NewReader(config))
	require.NoError(t, err)
	return p.(*properties)
}

func TestPrefixKeys(t *testing.T) {
	p := read(t)
	assert.Equal(t, []string{"audit", "bids"}, p.PrefixKeys("source"))
	assert.Equal(t, []string{"agg"}, p.PrefixKeys("function"))
	assert.Empty(t, p.PrefixKeys("sink"))
	assert.Nil(t, p.Sub("sink"))
}

func TestInitAndRender(t *testing.T) {
	bids := read(t).Sub("source.bids")
	text, err := InitAndRender(bids, cirrus.PropertiesDef{typeProperty, intervalProperty, fragmentProperty})
	require.NoError(t, err)
	assert.Contains(t, text, "mock")
	assert.Contains(t, text, "time.Duration")
	assert.Equal(t, 2*time.Second, bids.GetDuration(intervalProperty))
	assert.Equal(t, 4, bids.GetInt(fragmentProperty))
	assert.Equal(t, "debug", bids.Global().GetString(NewRequiredProperty[string]("log-level", "")))

	_, err = InitAndRender(read(t).Sub("function.agg"), cirrus.PropertiesDef{typeProperty})
	assert.True(t, errors.Is(err, ErrPropertyNoSet))
}

func TestRequired(t *testing.T) {
	assert.True(t, typeProperty.Required())
	assert.False(t, fragmentProperty.Required())
	assert.Equal(t, "[]string", brokersProperty.Type())
	assert.Contains(t, RenderDef(cirrus.PropertiesDef{typeProperty, fragmentProperty}), "fragments per window")
}

func TestMissingGlobal(t *testing.T) {
	p, err := Read("yaml", strings.NewReader("source:\n  a:\n    type: mock\n"))
	require.NoError(t, err)
	assert.False(t, p.Global().IsSet("log-level"))
}
