// Package retry provides bounded retry with backoff for transient failures,
// used when connecting to the identity provider.
//
//	err := retry.Do(func() error {
//		return client.Connect(ctx)
//	}, &retry.Config{
//		MaxAttempts: 5,
//		Backoff:     &retry.ConstantBackoff{Delay: 5 * time.Second},
//		Context:     ctx,
//		Logger:      log,
//	})
//
// Typed errors from pkg/errors are retried only when their type is
// retryable; auth and not-found errors fail immediately.
package retry
