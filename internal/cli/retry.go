package cli

import (
	"context"
	"errors"
	"time"

	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 5 * time.Second
	multiplier      = 1.5
)

// Retry runs operation until it succeeds, fails with something other than a
// transport error, or maxElapsed passes. Each attempt must build a new signed
// request; the server rejects a repeated nonce.
func Retry[T any](ctx context.Context, logger *zap.Logger, name string, maxElapsed time.Duration, operation func() (T, error)) (T, error) {
	if maxElapsed <= 0 {
		return operation()
	}

	retries := 0
	wrappedOperation := func() (T, error) {
		if retries > 0 {
			logger.Sugar().Infow("Retrying entity request", "operation", name, "retries", retries)
		}
		retries++
		res, err := operation()
		if err != nil && !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = initialInterval
	exponentialBackoff.MaxInterval = maxInterval
	exponentialBackoff.Multiplier = multiplier

	return backoff.Retry(
		ctx,
		wrappedOperation,
		backoff.WithBackOff(exponentialBackoff),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
}

// IsRetryable reports whether err came from the transport. Server answers,
// decryption failures and local validation errors are final.
func IsRetryable(err error) bool {
	var tErr *entity.TransportError
	if !errors.As(err, &tErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
