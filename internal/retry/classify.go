package retry

import (
	"errors"
	"strings"
)

// Class is the two-valued error classification the policy engine decides on.
type Class int

const (
	// ClassTransient errors are expected to be retry-resolvable: network
	// timeouts, rate limits, temporary resource exhaustion.
	ClassTransient Class = iota
	// ClassFatal errors cannot be fixed by retrying: malformed targets,
	// permanently missing resources, exhausted quotas, corrupt input.
	ClassFatal
)

func (c Class) String() string {
	if c == ClassFatal {
		return "fatal"
	}
	return "transient"
}

type classifiedError struct {
	class Class
	err   error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Transient marks err as retryable. Collaborators classify at their own
// boundary so callers never have to inspect error text.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassTransient, err: err}
}

// Fatal marks err as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: ClassFatal, err: err}
}

var fatalHints = []string{
	"not found",
	"404",
	"410",
	"private video",
	"account terminated",
	"unsupported url",
	"malformed",
	"invalid url",
	"login required",
	"authentication",
	"unauthorized",
	"forbidden",
	"quota exceeded",
	"unreadable input",
	"corrupt",
}

var transientHints = []string{
	"429",
	"too many requests",
	"rate limit",
	"timed out",
	"timeout",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"service unavailable",
	"network is unreachable",
	"http error 5",
	"session expired",
}

// Classify resolves an error to its class. Marker wrappers win; for errors
// escaping exec'd collaborators the text hints decide, with unknown errors
// treated as transient so a flaky tool never permanently fails a video on
// its first hiccup.
func Classify(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	text := strings.ToLower(err.Error())
	for _, h := range fatalHints {
		if strings.Contains(text, h) {
			return ClassFatal
		}
	}
	for _, h := range transientHints {
		if strings.Contains(text, h) {
			return ClassTransient
		}
	}
	return ClassTransient
}
