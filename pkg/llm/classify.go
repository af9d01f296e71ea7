package llm

import (
	"context"
	"errors"
	"strings"

	"codewright/pkg/llmerrors"
)

// ClassifyProviderError maps a raw SDK error into the shared taxonomy.
// Provider SDKs do not expose a common typed error surface, so status
// codes are extracted from the error text the same way each SDK embeds
// them.
func ClassifyProviderError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request canceled")
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	switch extractStatusCode(errStr) {
	case 401, 403:
		// Auth failures cannot succeed on retry; treat like an
		// unreachable endpoint.
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeConnection, err, "authentication failed")
	case 429:
		return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "rate limit exceeded")
	case 500, 502, 503, 504:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "server error")
	}

	switch {
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "dial tcp"),
		strings.Contains(lower, "network is unreachable"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeConnection, err, "endpoint unreachable")
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err, "request timed out")
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limiting detected")
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified provider error")
}

// extractStatusCode pulls an HTTP status code out of an SDK error
// string. Returns 0 when none is found.
func extractStatusCode(errStr string) int {
	lower := strings.ToLower(errStr)
	patterns := []string{"status code: ", "status: ", "http "}
	codes := map[string]int{
		"400": 400, "401": 401, "403": 403, "404": 404,
		"429": 429, "500": 500, "502": 502, "503": 503, "504": 504,
	}

	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start+3 > len(errStr) {
			continue
		}
		if code, ok := codes[errStr[start:start+3]]; ok {
			return code
		}
	}
	return 0
}
