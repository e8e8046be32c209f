package errs

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classify inspects an opaque error returned by an HTTP call or a context
// deadline and produces a classified error: an error that already wraps an
// *Error is returned as that *Error, a context deadline becomes Timeout,
// and anything else becomes Transient or Permanent. It
// mirrors the connection/protocol detection the teacher's MCP client uses
// to decide whether a failure is worth retrying, adapted to the two
// outcomes the pipeline's Dispatcher understands (spec §4.4, §7).
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, "operation timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Wrap(KindTimeout, "network operation timed out", err)
		}
		return Wrap(KindTransient, "network error", err)
	}

	if isConnectionError(err) {
		return Wrap(KindTransient, "connection error", err)
	}

	return Wrap(KindPermanent, "unclassified error", err)
}

// isConnectionError matches the common string forms of a refused,
// reset, or unreachable connection that don't always surface as a
// net.Error (e.g. once wrapped by database/sql or an HTTP client).
func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"eof",
		"i/o timeout",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// ClassifyHTTPStatus folds an HTTP response status code into Transient
// (worth a retry per spec §4.4 backoff rules) or Permanent (malformed
// request/response, retrying won't help).
func ClassifyHTTPStatus(status int) *Error {
	switch {
	case status == 0:
		return nil
	case status >= 500:
		return New(KindTransient, "server error")
	case status == 429:
		return New(KindTransient, "rate limited")
	case status >= 400:
		return New(KindPermanent, "client error")
	default:
		return nil
	}
}
