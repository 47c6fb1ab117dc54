package plan

import (
	"fmt"
	"math"
	"strconv"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/pkg/errors"
)

var allocator memory.Allocator = memory.DefaultAllocator

// appendValue appends arr[i] to b, both must share a data type.
func appendValue(b array.Builder, arr arrow.Array, i int) {
	if arr.IsNull(i) {
		b.AppendNull()
		return
	}
	switch a := arr.(type) {
	case *array.Int32:
		b.(*array.Int32Builder).Append(a.Value(i))
	case *array.Int64:
		b.(*array.Int64Builder).Append(a.Value(i))
	case *array.Float64:
		b.(*array.Float64Builder).Append(a.Value(i))
	case *array.String:
		b.(*array.StringBuilder).Append(a.Value(i))
	case *array.Boolean:
		b.(*array.BooleanBuilder).Append(a.Value(i))
	default:
		panic(fmt.Sprintf("unsupported array %s", arr.DataType()))
	}
}

// take gathers the rows of record at indices.
func take(record arrow.Record, indices []int) arrow.Record {
	b := array.NewRecordBuilder(allocator, record.Schema())
	defer b.Release()
	for c := 0; c < int(record.NumCols()); c++ {
		col := record.Column(c)
		fb := b.Field(c)
		fb.Reserve(len(indices))
		for _, i := range indices {
			appendValue(fb, col, i)
		}
	}
	return b.NewRecord()
}

// numeric reads arr[i] as float64.
func numeric(arr arrow.Array, i int) (float64, bool) {
	if arr.IsNull(i) {
		return 0, false
	}
	switch a := arr.(type) {
	case *array.Int32:
		return float64(a.Value(i)), true
	case *array.Int64:
		return float64(a.Value(i)), true
	case *array.Float64:
		return a.Value(i), true
	default:
		return 0, false
	}
}

// key renders arr[i] for hashing. Integers keep their exact value, a float
// holding an integral value shares the key of that integer.
func key(arr arrow.Array, i int) (string, bool) {
	if arr.IsNull(i) {
		return "", false
	}
	switch a := arr.(type) {
	case *array.String:
		return "s:" + a.Value(i), true
	case *array.Boolean:
		return "b:" + strconv.FormatBool(a.Value(i)), true
	case *array.Int32:
		return "i:" + strconv.FormatInt(int64(a.Value(i)), 10), true
	case *array.Int64:
		return "i:" + strconv.FormatInt(a.Value(i), 10), true
	case *array.Float64:
		v := a.Value(i)
		if n, ok := exactInt(v); ok {
			return "i:" + strconv.FormatInt(n, 10), true
		}
		return "n:" + strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}

// integer reads arr[i] of an integer column.
func integer(arr arrow.Array, i int) (int64, bool) {
	if arr.IsNull(i) {
		return 0, false
	}
	switch a := arr.(type) {
	case *array.Int32:
		return int64(a.Value(i)), true
	case *array.Int64:
		return a.Value(i), true
	default:
		return 0, false
	}
}

// exactInt converts v when it is integral and inside the int64 range.
func exactInt(v float64) (int64, bool) {
	if v != math.Trunc(v) || v < -(1<<63) || v >= 1<<63 {
		return 0, false
	}
	return int64(v), true
}

// ValueString renders arr[i] for display.
func ValueString(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return "NULL"
	}
	switch a := arr.(type) {
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10)
	case *array.Float64:
		return strconv.FormatFloat(a.Value(i), 'g', -1, 64)
	case *array.String:
		return a.Value(i)
	case *array.Boolean:
		return strconv.FormatBool(a.Value(i))
	default:
		return fmt.Sprintf("<%s>", arr.DataType())
	}
}

func checkBatches(schema *arrow.Schema, batches []arrow.Record) error {
	for _, batch := range batches {
		if !batch.Schema().Equal(schema) {
			return errors.WithMessagef(ErrInvalidInput, "batch schema %s, expected %s", batch.Schema(), schema)
		}
	}
	return nil
}
