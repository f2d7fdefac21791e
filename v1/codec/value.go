package codec

import (
	"fmt"
	"strconv"

	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
)

// Value encodes and decodes values of a single type T.
type Value[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

type signedInt interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsignedInt interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// For returns the Value implementation for T. The choice is made once, here:
// scalar types get a plain textual encoding that never touches c or comp,
// every other type is marshalled with c and then compressed with comp when
// comp is not nil. A nil c defaults to JSONCodec.
func For[T any](c Codec, comp Compressor) Value[T] {
	if c == nil {
		c = JSONCodec{}
	}
	var zero T
	var v any
	switch any(zero).(type) {
	case string:
		v = scalar[string]{
			format: func(s string) string { return s },
			parse:  func(s string) (string, error) { return s, nil },
		}
	case []byte:
		v = rawBytes{}
	case bool:
		v = scalar[bool]{format: strconv.FormatBool, parse: strconv.ParseBool}
	case int:
		v = signed[int](strconv.IntSize)
	case int8:
		v = signed[int8](8)
	case int16:
		v = signed[int16](16)
	case int32:
		v = signed[int32](32)
	case int64:
		v = signed[int64](64)
	case uint:
		v = unsigned[uint](strconv.IntSize)
	case uint8:
		v = unsigned[uint8](8)
	case uint16:
		v = unsigned[uint16](16)
	case uint32:
		v = unsigned[uint32](32)
	case uint64:
		v = unsigned[uint64](64)
	case float32:
		v = scalar[float32]{
			format: func(f float32) string { return strconv.FormatFloat(float64(f), 'g', -1, 32) },
			parse: func(s string) (float32, error) {
				f, err := strconv.ParseFloat(s, 32)
				return float32(f), err
			},
		}
	case float64:
		v = scalar[float64]{
			format: func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) },
			parse:  func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
		}
	default:
		return structured[T]{codec: c, comp: comp}
	}
	return v.(Value[T])
}

// IsScalar reports whether For[T] selects the plain textual encoding.
func IsScalar[T any]() bool {
	_, ok := For[T](nil, nil).(structured[T])
	return !ok
}

type scalar[T any] struct {
	format func(T) string
	parse  func(string) (T, error)
}

func (s scalar[T]) Encode(v T) ([]byte, error) { return []byte(s.format(v)), nil }

func (s scalar[T]) Decode(data []byte) (T, error) {
	v, err := s.parse(string(data))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", coorderrors.ErrDecode, err)
	}
	return v, nil
}

func signed[T signedInt](bits int) scalar[T] {
	return scalar[T]{
		format: func(v T) string { return strconv.FormatInt(int64(v), 10) },
		parse: func(s string) (T, error) {
			n, err := strconv.ParseInt(s, 10, bits)
			return T(n), err
		},
	}
}

func unsigned[T unsignedInt](bits int) scalar[T] {
	return scalar[T]{
		format: func(v T) string { return strconv.FormatUint(uint64(v), 10) },
		parse: func(s string) (T, error) {
			n, err := strconv.ParseUint(s, 10, bits)
			return T(n), err
		},
	}
}

type rawBytes struct{}

func (rawBytes) Encode(v []byte) ([]byte, error) { return v, nil }

func (rawBytes) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type structured[T any] struct {
	codec Codec
	comp  Compressor
}

func (s structured[T]) Encode(v T) ([]byte, error) {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	if s.comp == nil {
		return data, nil
	}
	return s.comp.Compress(data)
}

func (s structured[T]) Decode(data []byte) (T, error) {
	var v T
	if s.comp != nil {
		plain, err := s.comp.Decompress(data)
		if err != nil {
			return v, fmt.Errorf("%w: %w", coorderrors.ErrDecode, err)
		}
		data = plain
	}
	if err := s.codec.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", coorderrors.ErrDecode, err)
	}
	return v, nil
}
