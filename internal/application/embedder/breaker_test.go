package embedder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("opens after threshold consecutive failures", func(t *testing.T) {
		b := newBreaker(3, time.Minute)
		for i := 0; i < 2; i++ {
			b.RecordFailure(base)
		}
		ok, _ := b.Allow(base)
		assert.True(t, ok)

		b.RecordFailure(base)
		ok, wait := b.Allow(base)
		assert.False(t, ok)
		assert.Equal(t, time.Minute, wait)
	})

	t.Run("closes after cooldown", func(t *testing.T) {
		b := newBreaker(1, time.Minute)
		b.RecordFailure(base)
		ok, _ := b.Allow(base.Add(time.Minute))
		assert.True(t, ok)
	})

	t.Run("success resets the consecutive counter", func(t *testing.T) {
		b := newBreaker(3, time.Minute)
		b.RecordFailure(base)
		b.RecordFailure(base)
		b.RecordSuccess()
		b.RecordFailure(base)
		b.RecordFailure(base)
		ok, _ := b.Allow(base)
		assert.True(t, ok)
	})

	t.Run("zero threshold never opens", func(t *testing.T) {
		b := newBreaker(0, time.Minute)
		for i := 0; i < 100; i++ {
			b.RecordFailure(base)
		}
		ok, _ := b.Allow(base)
		assert.True(t, ok)
	})
}
