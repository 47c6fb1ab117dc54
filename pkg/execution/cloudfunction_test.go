package execution

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudFunctionJSON(t *testing.T) {
	cases := map[string]CloudFunction{
		`"none"`:                             {},
		`{"solo":"agg-01"}`:                  Solo("agg-01"),
		`{"chorus":{"name":"agg","size":4}}`: Chorus("agg", 4),
	}
	for text, fn := range cases {
		b, err := json.Marshal(fn)
		require.NoError(t, err)
		assert.JSONEq(t, text, string(b))

		got := CloudFunction{Kind: SoloKind, Name: "stale"}
		require.NoError(t, json.Unmarshal([]byte(text), &got))
		assert.Equal(t, fn, got)
	}

	var fn CloudFunction
	err := json.Unmarshal([]byte(`{"chorus":{"name":"agg","size":0}}`), &fn)
	assert.True(t, errors.Is(err, ErrInvalidCloudFunction))
	err = json.Unmarshal([]byte(`{"solo":"a","chorus":{"name":"b","size":1}}`), &fn)
	assert.True(t, errors.Is(err, ErrInvalidCloudFunction))
}

func TestCloudFunctionTargets(t *testing.T) {
	assert.True(t, CloudFunction{}.IsNone())
	assert.Nil(t, CloudFunction{}.Targets())
	assert.Equal(t, []string{"agg"}, Solo("agg").Targets())
	assert.Equal(t, []string{"agg-0", "agg-1", "agg-2"}, Chorus("agg", 3).Targets())
	assert.Equal(t, "chorus(agg, 3)", Chorus("agg", 3).String())
}

func TestFunctionName(t *testing.T) {
	code := QueryCode("SELECT * FROM t")
	assert.Len(t, code, QueryCodeLen)
	assert.Equal(t, code, QueryCode("SELECT * FROM t"))
	assert.NotEqual(t, code, QueryCode("SELECT * FROM u"))

	ts := time.Date(2021, 6, 1, 12, 30, 0, 123456789, time.UTC)
	name := FunctionName(code, 3, ts)
	assert.Equal(t, code+"-03-2021-06-01T12:30:00.123456789Z", name)

	gotCode, index, gotTs, err := ParseFunctionName(name)
	require.NoError(t, err)
	assert.Equal(t, code, gotCode)
	assert.Equal(t, 3, index)
	assert.True(t, ts.Equal(gotTs))

	for _, bad := range []string{"short", code + "-xx-2021-06-01T12:30:00Z", code + "-01-yesterday", code + "_01"} {
		_, _, _, err := ParseFunctionName(bad)
		assert.True(t, errors.Is(err, ErrInvalidFunctionName), bad)
	}
}
