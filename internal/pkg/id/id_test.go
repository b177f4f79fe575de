package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SortsWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	prev := At(at)
	for i := 0; i < 100; i++ {
		next := At(at)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTime_RoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	got, err := Time(At(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	_, err = Time("not-an-id")
	assert.Error(t, err)
}

func TestIdempotencyKey_Unique(t *testing.T) {
	assert.NotEqual(t, IdempotencyKey(), IdempotencyKey())
	assert.Len(t, IdempotencyKey(), 36)
}
