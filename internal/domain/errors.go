package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure talking to a remote service.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "ticker", "account", "order")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies exchange failures for retry policy decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindRateLimit
	KindInsufficientFunds
	KindOrderNotFound
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindOrderNotFound:
		return "order_not_found"
	default:
		return "unknown"
	}
}

var (
	// ErrRateLimited is returned when the exchange rejects a request for exceeding limits.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInsufficientFunds is returned when the account cannot cover the order.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOrderNotFound is returned when the exchange does not know the order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// ExchangeError wraps a venue rejection with its classified kind.
type ExchangeError struct {
	Op   string
	Kind ErrorKind
	Code string
	Err  error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code=%s)", e.Op, e.Err, e.Code)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError builds an ExchangeError, picking the sentinel that matches the kind
// when err is nil.
func NewExchangeError(op string, kind ErrorKind, code string, err error) *ExchangeError {
	if err == nil {
		switch kind {
		case KindRateLimit:
			err = ErrRateLimited
		case KindInsufficientFunds:
			err = ErrInsufficientFunds
		case KindOrderNotFound:
			err = ErrOrderNotFound
		default:
			err = errors.New("exchange error")
		}
	}
	return &ExchangeError{Op: op, Kind: kind, Code: code, Err: err}
}

// KindOf classifies any error returned by an Exchange.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var ne *NetworkError
	if errors.As(err, &ne) && ne.Retriable {
		return KindNetwork
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrOrderNotFound):
		return KindOrderNotFound
	}
	return KindUnknown
}

// IsTransient reports whether err is a transient network failure.
func IsTransient(err error) bool {
	return KindOf(err) == KindNetwork
}
