package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig defines retry behavior for transient RPC failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig is used by NewClient when given a zero config.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
}

// TransientError marks a failure that may succeed on retry (network errors,
// timeouts, 5xx, rate limits). Anything else is treated as a malformed
// response and surfaced immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var re *RPCError
	if errors.As(err, &re) {
		// -32000..-32099 are server errors; request-shape errors
		// (-32600..-32700) will not self-correct.
		return re.Code <= -32000 && re.Code > -32100
	}
	return false
}

// Caller is the minimal surface retried by CallWithRetry.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (any, error)
}

// CallWithRetry executes an RPC call, retrying transient failures with a
// linearly growing delay (attempt x base delay) up to the attempt ceiling.
func CallWithRetry(
	ctx context.Context,
	c Caller,
	method string,
	params []any,
	config RetryConfig,
) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err := c.Call(ctx, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * config.BaseDelay):
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}
