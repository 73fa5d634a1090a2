package resilience_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrannozavr/steamParser/internal/resilience"
)

func TestDefaultRetryPolicy_MatchesSpecConstants(t *testing.T) {
	p := resilience.DefaultRetryPolicy()
	assert.Equal(t, 60*time.Second, p.BaseDelay)
	assert.Equal(t, 2.0, p.Factor)
	assert.Equal(t, 10*time.Minute, p.Cap)
	assert.Equal(t, 10, p.MaxAttempts)
}

func TestDelay_DoublesUntilCap(t *testing.T) {
	p := resilience.RetryPolicy{BaseDelay: time.Second, Factor: 2.0, Cap: 10 * time.Second, Jitter: 0}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(4), "must not exceed Cap")
	assert.Equal(t, 10*time.Second, p.Delay(10), "must stay at Cap for arbitrarily large attempts")
}

func TestExhausted(t *testing.T) {
	p := resilience.RetryPolicy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(10))
}

func TestDelay_JitterStaysNonNegativeAndBounded(t *testing.T) {
	p := resilience.RetryPolicy{BaseDelay: time.Second, Factor: 2.0, Cap: time.Minute, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
