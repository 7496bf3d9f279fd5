package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var ErrEmptyCompletion = errors.New("empty response from AI")

// CompletionError is the uniform failure shape of every provider.
// Transient is set only for rate limiting; RetryAfter is in seconds.
type CompletionError struct {
	Provider   string
	StatusCode int
	Transient  bool
	RetryAfter *int
	Err        error
}

func (e *CompletionError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Transient {
		b.WriteString("rate limited")
		if e.RetryAfter != nil {
			fmt.Fprintf(&b, " (retry after %ds)", *e.RetryAfter)
		}
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else if !e.Transient {
		b.WriteString("completion failed")
	}
	return b.String()
}

func (e *CompletionError) Unwrap() error { return e.Err }

// RateLimited reports whether err is a transient provider failure and
// returns its optional retry delay.
func RateLimited(err error) (retryAfter *int, ok bool) {
	var ce *CompletionError
	if errors.As(err, &ce) && ce.Transient {
		return ce.RetryAfter, true
	}
	return nil, false
}

// Normalize wraps any error into a *CompletionError. Errors that already
// are one keep their classification.
func Normalize(provider string, err error) *CompletionError {
	if err == nil {
		return nil
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		if ce.Provider == "" {
			ce.Provider = provider
		}
		return ce
	}
	return &CompletionError{Provider: provider, Err: err}
}

// statusError classifies a non-2xx provider response.
func statusError(provider string, status int, header http.Header, body string) *CompletionError {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	ce := &CompletionError{Provider: provider, StatusCode: status, Err: errors.New(msg)}
	if status == http.StatusTooManyRequests {
		ce.Transient = true
		ce.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	}
	return ce
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return nil
		}
		return &n
	}
	if t, err := http.ParseTime(v); err == nil {
		secs := int(t.Sub(now).Round(time.Second).Seconds())
		if secs < 0 {
			secs = 0
		}
		return &secs
	}
	return nil
}
