// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Outcome classifies an upstream attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTemporary
	OutcomeHard
	OutcomeTimeout
	OutcomeNetwork
	OutcomeCircuitOpen
	OutcomeUnauthenticated
	OutcomeMalformed
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:         "success",
	OutcomeRateLimited:     "rate_limited",
	OutcomeTemporary:       "temporary",
	OutcomeHard:            "hard",
	OutcomeTimeout:         "timeout",
	OutcomeNetwork:         "network",
	OutcomeCircuitOpen:     "circuit_open",
	OutcomeUnauthenticated: "unauthenticated",
	OutcomeMalformed:       "malformed",
}

// String returns the metric label for o.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Recoverable reports whether o is served from cache rather than returned as an error.
func (o Outcome) Recoverable() bool {
	switch o {
	case OutcomeHard, OutcomeMalformed:
		return false
	case OutcomeSuccess:
		return false
	default:
		return true
	}
}

// Classify maps an HTTP status to an Outcome:
// 2xx success, 429 rate limited, 5xx and 408 temporary, anything else hard.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status >= 500, status == http.StatusRequestTimeout:
		return OutcomeTemporary
	default:
		return OutcomeHard
	}
}

var (
	// ErrMalformed is returned when a 2xx payload is not valid JSON or does
	// not decode into the expected shape.
	ErrMalformed = errors.New("fetch: malformed payload")

	// errNoCredential marks an authenticated request made without a token.
	errNoCredential = errors.New("fetch: no credential available")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Upstream   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Upstream, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Upstream, e.Status, e.Body)
}

// Outcome classifies the error's status.
func (e *HTTPError) Outcome() Outcome {
	return Classify(e.Status)
}

// parseRetryAfter reads a Retry-After header as delay-seconds or an HTTP date.
func parseRetryAfter(h string, now time.Time) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
