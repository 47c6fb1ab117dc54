// Package payload is the unit exchanged between function invocations: one
// fragment of a window, its identity and its record batches.
package payload

import (
	"bytes"
	"encoding/json"

	"cirrus/pkg/datasource"
	"cirrus/pkg/encoding"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/pkg/errors"
)

var ErrMalformedPayload = errors.New("malformed payload")

type Payload struct {
	UUID Uuid `json:"uuid"`
	// Data and Data2 are arrow IPC streams of the first and second relation.
	Data       []byte                `json:"data,omitempty"`
	Data2      []byte                `json:"data2,omitempty"`
	Encoding   encoding.Encoding     `json:"encoding"`
	DataSource datasource.DataSource `json:"datasource"`
}

// New encodes r1 and r2 into a payload. r2 may be empty for single input windows.
func New(r1, r2 []arrow.Record, uuid Uuid, enc encoding.Encoding) (*Payload, error) {
	if err := uuid.Validate(); err != nil {
		return nil, err
	}
	data, err := encodeRecords(r1, enc)
	if err != nil {
		return nil, errors.WithMessage(err, "can't encode first relation")
	}
	data2, err := encodeRecords(r2, enc)
	if err != nil {
		return nil, errors.WithMessage(err, "can't encode second relation")
	}
	return &Payload{
		UUID:       uuid,
		Data:       data,
		Data2:      data2,
		Encoding:   enc,
		DataSource: datasource.New(datasource.Payload, nil),
	}, nil
}

func (p *Payload) Fragment() Uuid {
	return p.UUID
}

func (p *Payload) WindowID() WindowID {
	return p.UUID.WindowID()
}

// ToRecordBatch decodes both relations, a missing relation decodes to nil.
func (p *Payload) ToRecordBatch() ([]arrow.Record, []arrow.Record, error) {
	r1, err := decodeRecords(p.Data, p.Encoding)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "can't decode first relation")
	}
	r2, err := decodeRecords(p.Data2, p.Encoding)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "can't decode second relation")
	}
	return r1, r2, nil
}

func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func Unmarshal(b []byte) (*Payload, error) {
	p := &Payload{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if err := p.Encoding.Validate(); err != nil {
		return nil, err
	}
	if err := p.UUID.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func encodeRecords(records []arrow.Record, enc encoding.Encoding) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(memory.DefaultAllocator))
	for _, record := range records {
		if err := w.Write(record); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return enc.Encode(buf.Bytes())
}

func decodeRecords(data []byte, enc encoding.Encoding) ([]arrow.Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := enc.Decode(data)
	if err != nil {
		return nil, err
	}
	r, err := ipc.NewReader(bytes.NewReader(raw), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	defer r.Release()
	var records []arrow.Record
	for r.Next() {
		record := r.Record()
		record.Retain()
		records = append(records, record)
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	return records, nil
}
