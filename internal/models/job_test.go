package models_test

import (
	"testing"

	"maestro/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMapping(t *testing.T) {
	// Stable client contract.
	assert.Equal(t, 0, models.StatusQueued.Code())
	assert.Equal(t, 0, models.StatusRunning.Code())
	assert.Equal(t, 1, models.StatusSucceeded.Code())
	assert.Equal(t, 2, models.StatusFailed.Code())

	// Anything unknown reports failed rather than pending.
	assert.Equal(t, 2, models.Status("exploded").Code())
	assert.Equal(t, 2, models.Status("").Code())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, models.StatusQueued.Terminal())
	assert.False(t, models.StatusRunning.Terminal())
	assert.True(t, models.StatusSucceeded.Terminal())
	assert.True(t, models.StatusFailed.Terminal())
}
