package services

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// PerAttemptTimeout bounds a single provider call; zero means no bound.
	PerAttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialInterval:   time.Second,
		MaxInterval:       30 * time.Second,
		PerAttemptTimeout: 2 * time.Minute,
	}
}

type retryingProvider struct {
	next   AnalysisProvider
	policy RetryPolicy
}

// WithRetry wraps provider so that transient failures are retried with
// exponential backoff. Unusable results and validation failures are returned
// immediately. The caller sees a single call either way.
func WithRetry(provider AnalysisProvider, policy RetryPolicy) AnalysisProvider {
	return &retryingProvider{next: provider, policy: policy}
}

func (r *retryingProvider) Analyze(ctx context.Context, audioRef string) (*models.AnalysisResult, error) {
	var result *models.AnalysisResult
	attempt := 0

	op := func() error {
		attempt++
		callCtx := ctx
		if r.policy.PerAttemptTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.policy.PerAttemptTimeout)
			defer cancel()
		}

		res, err := r.next.Analyze(callCtx, audioRef)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Str("audio_ref", audioRef).Msg("analysis attempt failed")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.policy.MaxRetries), ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *retryingProvider) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}
	b.MaxElapsedTime = 0
	return b
}

func isPermanent(err error) bool {
	var unusable *UnusableResultError
	var validation *ValidationError
	var notFound *NotFoundError
	var rejected *ProviderRejectedError
	return errors.As(err, &unusable) || errors.As(err, &validation) || errors.As(err, &notFound) ||
		errors.As(err, &rejected) || errors.Is(err, context.Canceled)
}
