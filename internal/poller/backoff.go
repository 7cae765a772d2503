// Package poller runs one scheduling loop per signal source, with jittered
// intervals on success and capped exponential backoff on failure.
package poller

import (
	"math/rand/v2"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// Config controls how often sources are polled and how failures are spaced.
type Config struct {
	Interval time.Duration
	// Jitter is the +/- fraction applied to Interval, 0.2 meaning +/-20%.
	Jitter       float64
	BackoffFloor time.Duration
	BackoffCap   time.Duration
	// RateLimitPause is the minimum wait after a 429.
	RateLimitPause time.Duration
	Timeout        time.Duration
	// A source turns yellow when its consecutive failures exceed YellowAfter
	// and red when they exceed RedAfter.
	YellowAfter int
	RedAfter    int
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		Jitter:         0.2,
		BackoffFloor:   time.Second,
		BackoffCap:     32 * time.Second,
		RateLimitPause: 60 * time.Second,
		Timeout:        10 * time.Second,
		YellowAfter:    0,
		RedAfter:       4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = d.Jitter
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = d.BackoffFloor
	}
	if c.BackoffCap < c.BackoffFloor {
		c.BackoffCap = c.BackoffFloor
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.RedAfter < c.YellowAfter {
		c.RedAfter = c.YellowAfter
	}
	return c
}

// Backoff returns min(floor * 2^failures, ceiling). It is monotonic in
// failures and never exceeds ceiling.
func Backoff(floor, ceiling time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return min(floor, ceiling)
	}
	d := floor
	for i := 0; i < failures; i++ {
		if d >= ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	return min(d, ceiling)
}

// HealthFor maps a consecutive failure count onto a traffic light.
func HealthFor(failures, yellowAfter, redAfter int) domain.Health {
	switch {
	case failures > redAfter:
		return domain.HealthRed
	case failures > yellowAfter:
		return domain.HealthYellow
	default:
		return domain.HealthGreen
	}
}

// Jittered perturbs interval uniformly within +/- frac using r in [0,1).
func Jittered(interval time.Duration, frac, r float64) time.Duration {
	return time.Duration(float64(interval) * (1 + (2*r-1)*frac))
}

func jitter(interval time.Duration, frac float64) time.Duration {
	return Jittered(interval, frac, rand.Float64())
}
