package ai

import (
	"regexp"
	"time"
	"unicode/utf8"
)

// RequestContext describes the conditions a generation call runs under.
type RequestContext struct {
	Mobile     bool
	Complex    bool
	Production bool
}

// Plan is the deadline for one generation call and the message shown if it
// is exceeded.
type Plan struct {
	Timeout        time.Duration
	TimeoutMessage string
}

// TimeoutPolicy adds Increment to Base for each of production, mobile and a
// complex prompt.
type TimeoutPolicy struct {
	Base         time.Duration
	Increment    time.Duration
	ComplexChars int
}

// DefaultTimeoutPolicy is 60s base with 30s steps and an 8000 character
// complexity threshold.
var DefaultTimeoutPolicy = TimeoutPolicy{
	Base:         60 * time.Second,
	Increment:    30 * time.Second,
	ComplexChars: 8000,
}

const (
	msgMobileComplex = "Generating a detailed itinerary on a mobile connection is taking longer than expected. " +
		"Try a shorter trip or fewer preferences, or switch to a stronger connection, then try again."
	msgMobile = "Your itinerary took too long to generate on a mobile connection. " +
		"Please move to a stronger signal or Wi-Fi and try again."
	msgComplex = "Your trip has a lot of detail and took too long to generate. " +
		"Try a shorter date range or fewer preferences, then try again."
	msgGeneric = "Generating your itinerary took longer than expected. Please try again in a moment."
)

// Plan computes the deadline and timeout message for rc.
func (p TimeoutPolicy) Plan(rc RequestContext) Plan {
	timeout := p.Base
	for _, on := range []bool{rc.Production, rc.Mobile, rc.Complex} {
		if on {
			timeout += p.Increment
		}
	}

	var msg string
	switch {
	case rc.Mobile && rc.Complex:
		msg = msgMobileComplex
	case rc.Mobile:
		msg = msgMobile
	case rc.Complex:
		msg = msgComplex
	default:
		msg = msgGeneric
	}
	return Plan{Timeout: timeout, TimeoutMessage: msg}
}

// IsComplex reports whether prompt exceeds the complexity threshold in characters.
func (p TimeoutPolicy) IsComplex(prompt string) bool {
	return p.ComplexChars > 0 && utf8.RuneCountInString(prompt) > p.ComplexChars
}

var mobileUA = regexp.MustCompile(`(?i)Mobile|Android|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// IsMobileUserAgent sniffs a User-Agent header for common mobile platforms.
func IsMobileUserAgent(ua string) bool {
	return mobileUA.MatchString(ua)
}
