package resolverstate

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ValidateState checks that a fetched blob parses as the state schema. The
// state is opaque to this client, so validation is a full wire-format scan:
// every field must consume cleanly and at least one field must be present.
// The contents are not inspected further; the WASM resolver owns the schema.
func ValidateState(state []byte) error {
	if len(state) == 0 {
		return fmt.Errorf("%w: empty blob", ErrInvalidState)
	}

	remaining := state
	fields := 0
	for len(remaining) > 0 {
		num, typ, n := protowire.ConsumeTag(remaining)
		if n < 0 {
			return fmt.Errorf("%w: bad tag at offset %d", ErrInvalidState, len(state)-len(remaining))
		}
		if num < 1 {
			return fmt.Errorf("%w: field number %d", ErrInvalidState, num)
		}
		remaining = remaining[n:]

		n = protowire.ConsumeFieldValue(num, typ, remaining)
		if n < 0 {
			return fmt.Errorf("%w: bad value for field %d", ErrInvalidState, num)
		}
		remaining = remaining[n:]
		fields++
	}
	if fields == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidState)
	}
	return nil
}
