package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	stdErrors "errors"
	"fmt"
)

// Codec defines methods for encoding and decoding structured values.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// GobCodec implements Codec using encoding/gob.
type GobCodec struct{}

func (GobCodec) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// ByteCodec implements Codec for raw byte slices.
// It fails if the value is not []byte.
type ByteCodec struct{}

func (ByteCodec) Marshal(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return nil, stdErrors.New("ByteCodec: value is not []byte")
}

func (ByteCodec) Unmarshal(data []byte, v any) error {
	if ptr, ok := v.(*[]byte); ok {
		*ptr = data
		return nil
	}
	return stdErrors.New("ByteCodec: v is not *[]byte")
}

// NewCodec returns the Codec registered under name ("json" or "gob").
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "gob":
		return GobCodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown serializer %q", name)
	}
}
