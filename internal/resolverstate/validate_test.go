package resolverstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestValidateStateAcceptsWellFormedBlob(t *testing.T) {
	buf := protowire.AppendTag(nil, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte("definitions"))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 42)

	assert.NoError(t, ValidateState(buf))
}

func TestValidateStateRejectsEmptyBlob(t *testing.T) {
	assert.ErrorIs(t, ValidateState(nil), ErrInvalidState)
	assert.ErrorIs(t, ValidateState([]byte{}), ErrInvalidState)
}

func TestValidateStateRejectsGarbage(t *testing.T) {
	assert.ErrorIs(t, ValidateState([]byte{0xff, 0xff, 0xff, 0xff}), ErrInvalidState)
}

func TestValidateStateRejectsTruncatedField(t *testing.T) {
	buf := protowire.AppendTag(nil, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte("definitions"))

	assert.ErrorIs(t, ValidateState(buf[:len(buf)-3]), ErrInvalidState)
}
