package performance

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"unicode/utf8"
)

// Error kinds recorded on samples that did not receive a response.
const (
	ErrorKindTimeout = "Timeout"
	ErrorKindRefused = "ECONNREFUSED"
	ErrorKindReset   = "ECONNRESET"
	ErrorKindSocket  = "SOCKET_ERROR"
	ErrorKindDNS     = "ENOTFOUND"
	ErrorKindAborted = "ABORTED"
	ErrorKindUnknown = "Unknown"
)

// maxErrorMessage bounds the fallback error kind taken from an error message.
const maxErrorMessage = 40

// Classify maps the raw result of one request onto an outcome and, for
// attempts that never saw a response, an error kind.
//
// transportErr is the error returned by the HTTP client (nil when a response
// arrived). bodyErr is the error from reading the response body.
func Classify(statusCode int, transportErr, bodyErr error) (Outcome, string) {
	if transportErr != nil {
		if isTimeout(transportErr) {
			return OutcomeTimeout, ErrorKindTimeout
		}
		return OutcomeConnectionError, connectionErrorKind(transportErr)
	}

	if !statusOK(statusCode) {
		return OutcomeHTTPError, ""
	}
	if bodyErr != nil {
		return OutcomeParseError, ""
	}
	return OutcomeSuccess, ""
}

func statusOK(code int) bool {
	return code >= 200 && code <= 299
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func connectionErrorKind(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorKindRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorKindReset
	case errors.Is(err, syscall.EPIPE), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorKindSocket
	case errors.Is(err, context.Canceled):
		return ErrorKindAborted
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorKindDNS
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name := errnoName(errno); name != "" {
			return name
		}
	}

	return truncateMessage(innermostMessage(err))
}

// innermostMessage strips the "Get \"url\": " prefix added by net/http.
func innermostMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	return err.Error()
}

func truncateMessage(msg string) string {
	if msg == "" {
		return ErrorKindUnknown
	}
	if utf8.RuneCountInString(msg) <= maxErrorMessage {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxErrorMessage])
}
