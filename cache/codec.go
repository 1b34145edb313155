package cache

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values for storage.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

// NewMsgpackCodec returns the default codec. Map keys are sorted so equal
// values always produce equal bytes.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, SerializationFailure(err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return SerializationFailure(err)
	}
	return nil
}
