package ws

import (
	"math"
	"math/rand/v2"
	"time"
)

// PolicyKind selects the reconnect behaviour.
type PolicyKind int

const (
	PolicyExponentialBackoff PolicyKind = iota
	PolicyNever
)

// UnlimitedAttempts disables the attempt ceiling of an exponential policy.
const UnlimitedAttempts = -1

const (
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultMaxAttempts  = 10

	jitterRatio = 0.1
)

// ReconnectPolicy is immutable configuration. Zero fields of an exponential
// policy take the package defaults, so the zero value is the default policy.
type ReconnectPolicy struct {
	Kind         PolicyKind
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts of 0 means DefaultMaxAttempts; UnlimitedAttempts removes the ceiling.
	MaxAttempts int
}

// NeverReconnect gives up on the first unexpected close.
func NeverReconnect() ReconnectPolicy {
	return ReconnectPolicy{Kind: PolicyNever}
}

// DefaultReconnectPolicy is 100ms doubling to 30s, 10 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Kind:         PolicyExponentialBackoff,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// JitterSource returns a uniform sample in [0, 1).
type JitterSource func() float64

// Decision is the resolver's verdict for one attempt.
type Decision struct {
	Delay       time.Duration
	ShouldRetry bool
}

// Resolve computes the delay before the given zero-based attempt and whether
// that attempt is allowed. The delay is
// min(initial*multiplier^attempt, max) with ±10% jitter, floored to whole
// milliseconds. A nil jitter source uses math/rand/v2.
func Resolve(p ReconnectPolicy, attempt int, jitter JitterSource) Decision {
	if p.Kind == PolicyNever {
		return Decision{}
	}
	if attempt < 0 {
		attempt = 0
	}
	p = p.withDefaults()
	if jitter == nil {
		jitter = rand.Float64
	}

	initialMs := float64(p.InitialDelay) / float64(time.Millisecond)
	maxMs := float64(p.MaxDelay) / float64(time.Millisecond)
	base := math.Min(initialMs*math.Pow(p.Multiplier, float64(attempt)), maxMs)

	delay := math.Floor(base + base*jitterRatio*(jitter()*2-1))
	if delay < 0 || math.IsNaN(delay) {
		delay = 0
	}

	return Decision{
		Delay:       time.Duration(delay) * time.Millisecond,
		ShouldRetry: p.MaxAttempts == UnlimitedAttempts || attempt < p.MaxAttempts,
	}
}
