package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeErrorClassification(t *testing.T) {
	transient := Transient("submit", errors.New("connection reset"))
	rejected := Rejected("submit", errors.New("insufficient balance"))

	assert.True(t, IsTransient(transient))
	assert.False(t, IsRejected(transient))
	assert.True(t, IsRejected(rejected))
	assert.False(t, IsTransient(rejected))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("decision: open BTCUSDT: %w", transient)
	assert.True(t, IsTransient(wrapped))

	// Plain errors carry no classification.
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsRejected(errors.New("boom")))
}

func TestExchangeErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Transient("status", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "status")
	assert.Contains(t, err.Error(), "transient")
}
