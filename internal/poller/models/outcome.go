package models

import (
	"fmt"
	"time"
)

// OutcomeKind is the tag of a classified lookup result.
type OutcomeKind int

const (
	// OutcomeUnknown is the zero value and never produced by classification.
	OutcomeUnknown OutcomeKind = iota
	OutcomeResolved
	OutcomeRateLimited
	OutcomeDenied
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResolved:
		return "resolved"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeDenied:
		return "denied"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome is the closed classification of one lookup. Exactly one tag is set;
// RetryAfter is meaningful only for OutcomeRateLimited, Data only for
// OutcomeResolved, Reason only for OutcomeMalformed. Build values through the
// constructors below.
type Outcome struct {
	kind       OutcomeKind
	retryAfter time.Duration
	data       LookupData
	reason     string
}

func Resolved(data LookupData) Outcome {
	return Outcome{kind: OutcomeResolved, data: data}
}

// RateLimited builds a rate-limit outcome. Negative durations clamp to zero.
func RateLimited(retryAfter time.Duration) Outcome {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Outcome{kind: OutcomeRateLimited, retryAfter: retryAfter}
}

func Denied() Outcome {
	return Outcome{kind: OutcomeDenied}
}

func Malformed(reason string) Outcome {
	return Outcome{kind: OutcomeMalformed, reason: reason}
}

func (o Outcome) Kind() OutcomeKind {
	return o.kind
}

// RetryAfter returns the server-requested wait and whether the outcome is a rate limit.
func (o Outcome) RetryAfter() (time.Duration, bool) {
	return o.retryAfter, o.kind == OutcomeRateLimited
}

// Data returns the normalized payload and whether the outcome is resolved.
func (o Outcome) Data() (LookupData, bool) {
	return o.data, o.kind == OutcomeResolved
}

func (o Outcome) Reason() string {
	return o.reason
}

func (o Outcome) String() string {
	switch o.kind {
	case OutcomeRateLimited:
		return fmt.Sprintf("rate_limited(%s)", o.retryAfter)
	case OutcomeMalformed:
		return fmt.Sprintf("malformed(%s)", o.reason)
	default:
		return o.kind.String()
	}
}
