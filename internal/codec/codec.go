// Package codec converts typed payloads to and from the opaque bytes carried in
// an invocation envelope.
//
// Payloads are encoded as UTF-8 JSON on both the inbound and the outbound side.
// The transport's own polymorphic "any" wrapper is never used for payloads, so
// a client and this service always agree on the byte representation.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// null is what encoding/json produces for nil pointers, maps, slices and interfaces.
var null = []byte("null")

// DecodeError is returned when payload bytes do not parse under the target type.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s payload: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes v. An absent value (nil pointer, nil map or nil interface)
// encodes to an empty payload.
func Encode[T any](v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T payload: %w", v, err)
	}
	if bytes.Equal(b, null) {
		return []byte{}, nil
	}
	return b, nil
}

// Decode parses b into a value of type T. An empty payload decodes to the zero
// value of T.
func Decode[T any](b []byte) (T, error) {
	var v T
	if len(bytes.TrimSpace(b)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		var zero T
		return zero, &DecodeError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return v, nil
}

// MustEncode is Encode for values that cannot fail to marshal, such as plain
// structs of strings. It panics otherwise.
func MustEncode[T any](v T) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}
