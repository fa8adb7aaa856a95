package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

// IsCircuitBreakerFailure counts transport failures and overload answers.
func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}

	switch statusCode {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusRequestTimeout,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func IsRetryable(statusCode int, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}

	switch statusCode {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusRequestTimeout,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, fasthttp.ErrTimeout) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrConnectionClosed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Timeout() || dnsErr.IsTemporary
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT)
}

// httpError turns a non-2xx body into an *types.APIError, keeping the
// server's field validation errors when the body carries them.
func httpError(statusCode int, body []byte) *types.APIError {
	var parsed types.ErrorBody
	if len(body) > 0 && utils.Unmarshal(body, &parsed) == nil {
		message := parsed.Message
		if message == "" {
			message = parsed.Error
		}
		return types.NewHTTPError(statusCode, message, parsed.Errors)
	}

	return types.NewHTTPError(statusCode, strings.TrimSpace(truncate(string(body), 200)), nil)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
