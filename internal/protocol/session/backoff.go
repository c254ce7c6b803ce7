package session

import (
	"math"
	"math/rand"
	"time"
)

// Next returns the delay that follows prev after one more consecutive
// failure. A non-positive prev restarts at InitialDelay; the result never
// exceeds MaxDelay, so Next(MaxDelay) == MaxDelay.
func Next(cfg BackoffConfig, prev time.Duration) time.Duration {
	if prev <= 0 {
		return clampDelay(cfg, cfg.InitialDelay)
	}
	mult := cfg.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	next := float64(prev) * mult
	if cfg.MaxDelay > 0 && next > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(next)
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return clampDelay(cfg, cfg.InitialDelay)
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

func clampDelay(cfg BackoffConfig, d time.Duration) time.Duration {
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
