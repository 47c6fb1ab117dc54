package plan

import (
	"context"
	"encoding/json"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/pkg/errors"
)

const memoryExecKind = "memory_exec"

// MemoryExec is the leaf that scans batches attached in memory.
type MemoryExec struct {
	schema     *arrow.Schema
	partitions [][]arrow.Record
}

func NewMemoryExec(schema *arrow.Schema, partitions [][]arrow.Record) (*MemoryExec, error) {
	m := &MemoryExec{schema: schema}
	if err := m.SetPartitions(partitions); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoryExec) Kind() string          { return memoryExecKind }
func (m *MemoryExec) Schema() *arrow.Schema { return m.schema }
func (m *MemoryExec) Children() []Plan      { return nil }

func (m *MemoryExec) Partitions() [][]arrow.Record {
	return m.partitions
}

// SetPartitions replaces the batches scanned by the leaf.
func (m *MemoryExec) SetPartitions(partitions [][]arrow.Record) error {
	for _, partition := range partitions {
		if err := checkBatches(m.schema, partition); err != nil {
			return err
		}
	}
	m.partitions = partitions
	return nil
}

func (m *MemoryExec) Execute(ctx context.Context) ([]arrow.Record, error) {
	var out []arrow.Record
	for _, partition := range m.partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, partition...)
	}
	return out, nil
}

type memoryExecJSON struct {
	Kind   string     `json:"execution_plan"`
	Schema schemaJSON `json:"schema"`
}

func (m *MemoryExec) MarshalJSON() ([]byte, error) {
	schema, err := encodeSchema(m.schema)
	if err != nil {
		return nil, err
	}
	return json.Marshal(memoryExecJSON{Kind: memoryExecKind, Schema: schema})
}

func init() {
	register(memoryExecKind, func(raw []byte) (Plan, error) {
		v := memoryExecJSON{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		schema, err := decodeSchema(v.Schema)
		if err != nil {
			return nil, err
		}
		return &MemoryExec{schema: schema}, nil
	})
}

var _ Leaf = &MemoryExec{}
