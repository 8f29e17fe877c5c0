// Package queue holds queue-domain rules that are independent of storage.
package queue

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultVisibility indicates the configured default visibility
// timeout is not positive.
var ErrInvalidDefaultVisibility = errors.New("default visibility timeout must be positive")

// VisibilitySource identifies how a visibility timeout was resolved.
type VisibilitySource string

const (
	// VisibilitySourceExplicit indicates the caller supplied a positive duration.
	VisibilitySourceExplicit VisibilitySource = "explicit"
	// VisibilitySourceDefault indicates the default duration was used.
	VisibilitySourceDefault VisibilitySource = "default"
	// VisibilitySourceClamped indicates the requested duration was clamped to
	// the minimum supported value.
	VisibilitySourceClamped VisibilitySource = "clamped"
)

// VisibilityPolicy normalises visibility timeouts for message leases. The
// timeout is a lease, not a commit: a message left unresolved becomes visible
// again once it elapses, so the policy is the single place that decides how
// long a worker may hold a message.
type VisibilityPolicy struct {
	defaultTimeout time.Duration
}

// NewVisibilityPolicy constructs a VisibilityPolicy with the provided default.
func NewVisibilityPolicy(defaultTimeout time.Duration) (*VisibilityPolicy, error) {
	if defaultTimeout <= 0 {
		return nil, ErrInvalidDefaultVisibility
	}
	return &VisibilityPolicy{defaultTimeout: defaultTimeout}, nil
}

// Default returns the configured default visibility timeout.
func (p *VisibilityPolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultTimeout
}

// VisibilityDecision captures the outcome of resolving a timeout request.
type VisibilityDecision struct {
	Seconds   int
	Source    VisibilitySource
	Requested time.Duration
}

// Clamped reports whether the requested value was clamped to the minimum.
func (d VisibilityDecision) Clamped() bool {
	return d.Source == VisibilitySourceClamped
}

// Resolve normalises the requested duration to a whole number of seconds.
func (p *VisibilityPolicy) Resolve(request time.Duration) VisibilityDecision {
	if p == nil {
		return VisibilityDecision{Seconds: 0, Source: VisibilitySourceDefault, Requested: request}
	}

	decision := VisibilityDecision{Requested: request}

	switch {
	case request > 0:
		seconds, clamped := durationToSeconds(request)
		decision.Seconds = seconds
		if clamped {
			decision.Source = VisibilitySourceClamped
		} else {
			decision.Source = VisibilitySourceExplicit
		}
		return decision
	case request == 0:
		seconds, _ := durationToSeconds(p.defaultTimeout)
		decision.Seconds = seconds
		decision.Source = VisibilitySourceDefault
		return decision
	default:
		decision.Seconds = 1
		decision.Source = VisibilitySourceClamped
		return decision
	}
}

// Covers reports whether the policy's default lease fully covers the given
// executor timeout. The executor must be abandoned before the lease silently
// expires and a second worker picks up the same message.
func (p *VisibilityPolicy) Covers(executorTimeout time.Duration) bool {
	if p == nil {
		return false
	}
	return p.defaultTimeout > executorTimeout
}

func durationToSeconds(d time.Duration) (int, bool) {
	seconds := int64(d / time.Second)
	clamped := false

	if seconds <= 0 {
		seconds = 1
		clamped = true
	}

	maxSeconds := int64(math.MaxInt)
	if seconds > maxSeconds {
		seconds = maxSeconds
		clamped = true
	}

	return int(seconds), clamped
}
