package plan

import (
	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

var ErrUnsupportedType = errors.New("unsupported data type")

type fieldJSON struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type schemaJSON struct {
	Fields []fieldJSON `json:"fields"`
}

var (
	typeNames = map[arrow.Type]string{
		arrow.INT32:   "Int32",
		arrow.INT64:   "Int64",
		arrow.FLOAT64: "Float64",
		arrow.STRING:  "Utf8",
		arrow.BOOL:    "Boolean",
	}
	namedTypes = map[string]arrow.DataType{
		"Int32":   arrow.PrimitiveTypes.Int32,
		"Int64":   arrow.PrimitiveTypes.Int64,
		"Float64": arrow.PrimitiveTypes.Float64,
		"Utf8":    arrow.BinaryTypes.String,
		"Boolean": arrow.FixedWidthTypes.Boolean,
	}
)

func encodeSchema(schema *arrow.Schema) (schemaJSON, error) {
	out := schemaJSON{Fields: make([]fieldJSON, 0, len(schema.Fields()))}
	for _, f := range schema.Fields() {
		name, ok := typeNames[f.Type.ID()]
		if !ok {
			return schemaJSON{}, errors.WithMessagef(ErrUnsupportedType, "field %s: %s", f.Name, f.Type)
		}
		out.Fields = append(out.Fields, fieldJSON{Name: f.Name, DataType: name, Nullable: f.Nullable})
	}
	return out, nil
}

func decodeSchema(s schemaJSON) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		dt, ok := namedTypes[f.DataType]
		if !ok {
			return nil, errors.WithMessagef(ErrUnsupportedType, "field %s: %s", f.Name, f.DataType)
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: f.Nullable})
	}
	return arrow.NewSchema(fields, nil), nil
}

func checkColumn(schema *arrow.Schema, index int) error {
	if index < 0 || index >= len(schema.Fields()) {
		return errors.WithMessagef(ErrInvalidPlan, "column %d out of range, schema has %d fields", index, len(schema.Fields()))
	}
	return nil
}
