package kraken

import (
	"fmt"
	"strings"
)

// ErrorKind is the closed set of exchange failure categories. Callers
// compare kinds instead of matching the exchange's free-text messages; the
// string matching is confined to classifyExchangeError at this boundary.
type ErrorKind string

const (
	ErrKindAuth              ErrorKind = "auth"
	ErrKindInsufficientFunds ErrorKind = "insufficient_funds"
	ErrKindRejected          ErrorKind = "rejected"
	ErrKindInvalidAmount     ErrorKind = "invalid_amount"
	ErrKindRateLimited       ErrorKind = "rate_limited"
	ErrKindUnknown           ErrorKind = "unknown"
)

// ExchangeError is an error reported by the exchange itself, as opposed to a
// transport failure.
type ExchangeError struct {
	Kind    ErrorKind
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error (%s): %s", e.Kind, e.Message)
}

// classifyExchangeError maps a raw exchange error message to a typed kind.
func classifyExchangeError(msg string) *ExchangeError {
	lower := strings.ToLower(msg)

	kind := ErrKindUnknown
	switch {
	case strings.Contains(lower, "invalid key") || strings.Contains(lower, "invalid signature") ||
		strings.Contains(lower, "permission denied") || strings.Contains(lower, "invalid nonce"):
		kind = ErrKindAuth
	case strings.Contains(lower, "insufficient funds") || strings.Contains(lower, "insufficient initial margin"):
		kind = ErrKindInsufficientFunds
	case strings.Contains(lower, "rate limit"):
		kind = ErrKindRateLimited
	case strings.Contains(lower, "invalid arguments:volume") || strings.Contains(lower, "volume minimum not met") ||
		strings.Contains(lower, "invalid amount"):
		kind = ErrKindInvalidAmount
	case strings.Contains(lower, "rejected") || strings.Contains(lower, "cannot open position"):
		kind = ErrKindRejected
	}

	return &ExchangeError{Kind: kind, Message: msg}
}
