package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfFindsWrappedKind(t *testing.T) {
	err := E(KindInput, "rag.Answer", ErrEmptyQuestion)
	wrapped := fmt.Errorf("handling request: %w", err)

	assert.Equal(t, KindInput, KindOf(wrapped))
	assert.True(t, IsInput(wrapped))
	assert.ErrorIs(t, wrapped, ErrEmptyQuestion)
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.False(t, IsUpstream(errors.New("plain")))
}

func TestErrorfMessageIncludesOpAndKind(t *testing.T) {
	err := Errorf(KindConfig, "embedding.Load", "manifest says %d rows", 7)
	assert.Contains(t, err.Error(), "embedding.Load")
	assert.Contains(t, err.Error(), "config")
	assert.Contains(t, err.Error(), "7 rows")
}
