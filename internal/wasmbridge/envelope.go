// Package wasmbridge moves request/response payloads across the WASM sandbox
// boundary. The guest shares no object model with the host, only linear
// memory and integer pointers, so every payload travels as a wire-encoded
// envelope written into guest memory.
package wasmbridge

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers. A request carries only data; a response carries
// exactly one of data or error.
const (
	envelopeDataField  = 1
	envelopeErrorField = 2
)

// GuestError is a failure reported by the guest itself through the error
// branch of the response envelope.
type GuestError struct {
	Message string
}

func (e GuestError) Error() string {
	return fmt.Sprintf("wasm guest error: %s", e.Message)
}

// ErrMalformedEnvelope is returned when the guest response violates the
// envelope contract (unparseable, neither branch set, or both set).
var ErrMalformedEnvelope = errors.New("wasmbridge: malformed response envelope")

// EncodeRequest wraps a domain payload in the request envelope.
func EncodeRequest(data []byte) []byte {
	buf := protowire.AppendTag(nil, envelopeDataField, protowire.BytesType)
	return protowire.AppendBytes(buf, data)
}

// DecodeRequest unwraps a request envelope. Only test doubles standing in
// for the guest need this on the host side.
func DecodeRequest(envelope []byte) ([]byte, error) {
	data, errMsg, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		return nil, ErrMalformedEnvelope
	}
	if data == nil {
		return nil, ErrMalformedEnvelope
	}
	return data, nil
}

// EncodeResponseData wraps a successful payload in the response envelope.
func EncodeResponseData(data []byte) []byte {
	buf := protowire.AppendTag(nil, envelopeDataField, protowire.BytesType)
	return protowire.AppendBytes(buf, data)
}

// EncodeResponseError wraps a guest failure in the response envelope.
func EncodeResponseError(message string) []byte {
	buf := protowire.AppendTag(nil, envelopeErrorField, protowire.BytesType)
	return protowire.AppendString(buf, message)
}

// DecodeResponse unwraps a response envelope. The error branch surfaces as a
// GuestError; a response with neither or both branches set is
// ErrMalformedEnvelope.
func DecodeResponse(envelope []byte) ([]byte, error) {
	data, errMsg, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	switch {
	case data != nil && errMsg != nil:
		return nil, ErrMalformedEnvelope
	case errMsg != nil:
		return nil, GuestError{Message: *errMsg}
	case data != nil:
		return data, nil
	default:
		return nil, ErrMalformedEnvelope
	}
}

func decodeEnvelope(envelope []byte) (data []byte, errMsg *string, err error) {
	remaining := envelope
	for len(remaining) > 0 {
		num, typ, n := protowire.ConsumeTag(remaining)
		if n < 0 {
			return nil, nil, ErrMalformedEnvelope
		}
		remaining = remaining[n:]

		if typ != protowire.BytesType {
			return nil, nil, ErrMalformedEnvelope
		}
		field, n := protowire.ConsumeBytes(remaining)
		if n < 0 {
			return nil, nil, ErrMalformedEnvelope
		}
		remaining = remaining[n:]

		switch num {
		case envelopeDataField:
			data = field
		case envelopeErrorField:
			msg := string(field)
			errMsg = &msg
		default:
			// Unknown fields are skipped for forward compatibility.
		}
	}
	return data, errMsg, nil
}
