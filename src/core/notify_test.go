package core

import (
	"testing"
	"time"

	"gbs/src/types"

	"github.com/stretchr/testify/assert"
)

func TestDropEventConsumerDedups(t *testing.T) {
	var got []types.DropChange
	consumer := NewDropEventConsumer(func(c types.DropChange) {
		got = append(got, c)
	})

	now := time.Now()
	first := types.DropChange{ID: 7, CurrentDiscount: 50, CurrentValue: 4000, Status: types.DROP_ACTIVE, UpdatedAt: now}

	assert.True(t, consumer.Consume(first))
	assert.False(t, consumer.Consume(first))
	assert.False(t, consumer.Consume(first))
	assert.Len(t, got, 1)

	// Same drop, new aggregate: a fresh event, not a duplicate.
	second := first
	second.CurrentDiscount = 70
	second.CurrentValue = 8000
	assert.True(t, consumer.Consume(second))
	assert.Len(t, got, 2)

	// A different drop with identical numbers is independent.
	other := first
	other.ID = 8
	assert.True(t, consumer.Consume(other))
	assert.Len(t, got, 3)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "drops:42", DropChannel(42))
	assert.Equal(t, "pickup:9", PickupChannel(9))
}
