package ws

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedJitter(v float64) JitterSource {
	return func() float64 { return v }
}

func TestResolveDefaults(t *testing.T) {
	d := Resolve(ReconnectPolicy{}, 0, fixedJitter(0.5))
	assert.Equal(t, 100*time.Millisecond, d.Delay)
	assert.True(t, d.ShouldRetry)

	d = Resolve(ReconnectPolicy{}, 3, fixedJitter(0.5))
	assert.Equal(t, 800*time.Millisecond, d.Delay)

	d = Resolve(ReconnectPolicy{}, 20, fixedJitter(0.5))
	assert.Equal(t, 30*time.Second, d.Delay, "capped at max delay")

	assert.False(t, Resolve(ReconnectPolicy{}, 10, nil).ShouldRetry)
}

func TestResolveJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	policies := []ReconnectPolicy{
		DefaultReconnectPolicy(),
		{InitialDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 3},
		{InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 2},
	}
	for _, p := range policies {
		q := p.withDefaults()
		for attempt := 0; attempt < 15; attempt++ {
			base := float64(q.InitialDelay)
			for i := 0; i < attempt; i++ {
				base *= q.Multiplier
			}
			if base > float64(q.MaxDelay) {
				base = float64(q.MaxDelay)
			}
			for i := 0; i < 50; i++ {
				d := Resolve(p, attempt, rng.Float64)
				assert.GreaterOrEqual(t, float64(d.Delay), 0.9*base-float64(time.Millisecond))
				assert.LessOrEqual(t, float64(d.Delay), 1.1*base)
			}
		}
	}
}

func TestResolveJitterExtremes(t *testing.T) {
	p := ReconnectPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}
	assert.Equal(t, 900*time.Millisecond, Resolve(p, 0, fixedJitter(0)).Delay)
	assert.Equal(t, time.Second, Resolve(p, 0, fixedJitter(0.5)).Delay)
	assert.Less(t, Resolve(p, 0, fixedJitter(0.9999)).Delay, 1100*time.Millisecond)
}

func TestResolveMaxAttempts(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		p := ReconnectPolicy{MaxAttempts: n}
		for attempt := 0; attempt < n+5; attempt++ {
			assert.Equal(t, attempt < n, Resolve(p, attempt, nil).ShouldRetry, "n=%d attempt=%d", n, attempt)
		}
	}
}

func TestResolveUnlimited(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: UnlimitedAttempts}
	assert.True(t, Resolve(p, 1_000_000, nil).ShouldRetry)
	assert.Equal(t, DefaultMaxDelay, Resolve(p, 1_000_000, fixedJitter(0.5)).Delay)
}

func TestResolveNever(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		d := Resolve(NeverReconnect(), attempt, nil)
		assert.False(t, d.ShouldRetry)
		assert.Zero(t, d.Delay)
	}
}
