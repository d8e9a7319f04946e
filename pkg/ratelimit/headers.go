package ratelimit

import (
	"math"
	"strconv"
	"time"
)

// Response header names set by the HTTP middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Headers returns the rate limit response headers for r. Retry-After is only
// present when the request was rejected.
func (r *Result) Headers(now time.Time) map[string]string {
	h := map[string]string{
		HeaderLimit:     strconv.Itoa(r.Limit),
		HeaderRemaining: strconv.Itoa(r.Remaining),
		HeaderReset:     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if !r.OK {
		h[HeaderRetryAfter] = RetryAfterSeconds(r.RetryAfter(now))
	}
	return h
}

// RetryAfterSeconds formats d as whole seconds, rounded up, at least 1.
func RetryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
