package doris

import (
	_c "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"cirrus/cirrus"
	"cirrus/lib/context"
	"cirrus/lib/properties"
	"cirrus/pkg/payload"
	"cirrus/pkg/testutils"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func output() *cirrus.Output {
	schema := testutils.Schema("auction", arrow.PrimitiveTypes.Int64, "max(price)", arrow.PrimitiveTypes.Float64)
	return &cirrus.Output{
		Function: "agg.Stage-01",
		Window:   payload.WindowID{QueryID: "q:1", ShuffleID: 2},
		Batches: []arrow.Record{
			testutils.Record(schema, []int64{1, 2}, []float64{9.5, 4}),
		},
	}
}

func open(t *testing.T, frontends ...string) *sink {
	config := fmt.Sprintf("sink:\n  doris:\n    type: doris\n    frontends: [\"%s\"]\n    database: bench\n    table: bids\n    password: secret\n",
		strings.Join(frontends, `", "`))
	ps, err := properties.Read("yaml", strings.NewReader(config))
	require.NoError(t, err)
	ctx := context.New(_c.Background(), ps).Named("sink.doris")
	s := New().(*sink)
	_, err = properties.InitAndRender(ctx.Properties(), s.PropertiesDef())
	require.NoError(t, err)
	require.NoError(t, s.Open(ctx))
	return s
}

func TestLoad(t *testing.T) {
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/bench/bids/_stream_load", r.URL.Path)
		user, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "root", user)
		assert.Equal(t, "secret", password)
		assert.Equal(t, "json", r.Header.Get("format"))
		assert.Equal(t, "agg_Stage-01_q_1_2", r.Header.Get("label"))
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		_, _ = w.Write([]byte(`{"Status":"Success","Label":"agg_Stage-01_q_1_2","NumberLoadedRows":2}`))
	}))
	defer server.Close()

	s := open(t, strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, s.load(output()))
	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(<-bodies, &got))
	require.Len(t, got, 2)
	assert.EqualValues(t, 1, got[0]["auction"])
	assert.EqualValues(t, 9.5, got[0]["max(price)"])
}

func TestLoadFailover(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"Status":"Label Already Exists"}`))
	}))
	defer server.Close()
	dead := httptest.NewServer(http.NotFoundHandler())
	deadAddr := strings.TrimPrefix(dead.URL, "http://")
	dead.Close()

	s := open(t, deadAddr, strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, s.load(output()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestLoadRejected(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"Status":"Fail","Message":"too many filtered rows"}`))
	})
	first, second := httptest.NewServer(handler), httptest.NewServer(handler)
	defer first.Close()
	defer second.Close()

	s := open(t, strings.TrimPrefix(first.URL, "http://"), strings.TrimPrefix(second.URL, "http://"))
	err := s.load(output())
	assert.ErrorIs(t, err, ErrStreamLoad)
	assert.Contains(t, err.Error(), "too many filtered rows")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRowsKeepNulls(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).AppendNull()
	rows := Rows([]arrow.Record{b.NewRecord()})
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["name"])
	assert.Empty(t, Rows(nil))
}
