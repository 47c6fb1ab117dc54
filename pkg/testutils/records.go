// Package testutils builds small arrow records for tests.
package testutils

import (
	"fmt"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
)

// Schema builds a non-nullable schema from name/type pairs.
func Schema(fields ...interface{}) *arrow.Schema {
	if len(fields)%2 != 0 {
		panic("fields must be name/type pairs")
	}
	out := make([]arrow.Field, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		out = append(out, arrow.Field{Name: fields[i].(string), Type: fields[i+1].(arrow.DataType)})
	}
	return arrow.NewSchema(out, nil)
}

// Record builds a record of schema from one Go slice per column.
func Record(schema *arrow.Schema, columns ...interface{}) arrow.Record {
	if len(columns) != len(schema.Fields()) {
		panic(fmt.Sprintf("expected %d columns, got %d", len(schema.Fields()), len(columns)))
	}
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i, column := range columns {
		switch values := column.(type) {
		case []int32:
			b.Field(i).(*array.Int32Builder).AppendValues(values, nil)
		case []int64:
			b.Field(i).(*array.Int64Builder).AppendValues(values, nil)
		case []float64:
			b.Field(i).(*array.Float64Builder).AppendValues(values, nil)
		case []string:
			b.Field(i).(*array.StringBuilder).AppendValues(values, nil)
		case []bool:
			b.Field(i).(*array.BooleanBuilder).AppendValues(values, nil)
		default:
			panic(fmt.Sprintf("unsupported column type %T", column))
		}
	}
	return b.NewRecord()
}

// Rows flattens records into their textual rows.
func Rows(records []arrow.Record) [][]string {
	var rows [][]string
	for _, record := range records {
		for r := 0; r < int(record.NumRows()); r++ {
			row := make([]string, record.NumCols())
			for c := 0; c < int(record.NumCols()); c++ {
				row[c] = Value(record.Column(c), r)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Value renders one cell.
func Value(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return "NULL"
	}
	switch a := arr.(type) {
	case *array.Int32:
		return fmt.Sprint(a.Value(i))
	case *array.Int64:
		return fmt.Sprint(a.Value(i))
	case *array.Float64:
		return fmt.Sprint(a.Value(i))
	case *array.String:
		return a.Value(i)
	case *array.Boolean:
		return fmt.Sprint(a.Value(i))
	default:
		return fmt.Sprintf("<%s>", arr.DataType())
	}
}
