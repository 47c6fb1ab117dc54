// Package encoding holds the byte transforms applied to data shipped between
// function invocations. Some platforms cap the size of an invocation's
// environment or request, so every envelope records which transform it uses.
package encoding

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Encoding is the tag persisted next to encoded bytes.
type Encoding string

const (
	None   Encoding = "None"
	Snappy Encoding = "Snappy"
	Lz4    Encoding = "Lz4"
	Zstd   Encoding = "Zstd"
)

var ErrUnsupportedEncoding = errors.New("unsupported encoding")

type codec interface {
	encode(src []byte) ([]byte, error)
	decode(src []byte) ([]byte, error)
}

var codecs = map[Encoding]codec{
	None:   noneCodec{},
	Snappy: snappyCodec{},
	Lz4:    lz4Codec{},
	Zstd:   zstdCodec{},
}

// Supported lists every encoding this build understands.
func Supported() []Encoding {
	return []Encoding{None, Snappy, Lz4, Zstd}
}

// Validate returns ErrUnsupportedEncoding for unknown tags.
func (e Encoding) Validate() error {
	if _, ok := codecs[e]; !ok {
		return errors.WithMessagef(ErrUnsupportedEncoding, "%q", string(e))
	}
	return nil
}

// Encode compresses src under e.
func (e Encoding) Encode(src []byte) ([]byte, error) {
	c, ok := codecs[e]
	if !ok {
		return nil, errors.WithMessagef(ErrUnsupportedEncoding, "%q", string(e))
	}
	return c.encode(src)
}

// Decode reverses Encode.
func (e Encoding) Decode(src []byte) ([]byte, error) {
	c, ok := codecs[e]
	if !ok {
		return nil, errors.WithMessagef(ErrUnsupportedEncoding, "%q", string(e))
	}
	out, err := c.decode(src)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", string(e))
	}
	return out, nil
}

type noneCodec struct{}
type snappyCodec struct{}
type lz4Codec struct{}
type zstdCodec struct{}

func (noneCodec) encode(src []byte) ([]byte, error) { return src, nil }
func (noneCodec) decode(src []byte) ([]byte, error) { return src, nil }

func (snappyCodec) encode(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) decode(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}

func (lz4Codec) encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) decode(src []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
}

func (zstdCodec) encode(src []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.EncodeAll(src, nil), nil
}

func (zstdCodec) decode(src []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.DecodeAll(src, nil)
}
