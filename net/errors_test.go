package net

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlayNetErrorMessage(t *testing.T) {
	err := &OverlayNetError{Op: "read", Addr: "abc", Err: ErrTimeout}
	assert.Contains(t, err.Error(), "overlay read abc")
	assert.Contains(t, err.Error(), ErrTimeout.Error())

	noAddr := &OverlayNetError{Op: "dial", Err: ErrPeerUnreachable}
	assert.NotContains(t, noAddr.Error(), "  ")
	assert.Contains(t, noAddr.Error(), "overlay dial:")
}

func TestOverlayNetErrorUnwrap(t *testing.T) {
	err := NewOverlayNetError("write", "peer", ErrPartialWrite)
	assert.True(t, errors.Is(err, ErrPartialWrite))

	var netErr *OverlayNetError
	assert.True(t, errors.As(err, &netErr))
	assert.Equal(t, "write", netErr.Op)
}
