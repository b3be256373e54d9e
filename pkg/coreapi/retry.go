package coreapi

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
)

// RetryPolicy controls the exec() wrapper's exponential backoff schedule and
// total retry budget.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
	// MaxElapsed bounds total time spent retrying a single call, measured
	// from the first attempt. Exceeding it returns ErrTimeout.
	MaxElapsed time.Duration
}

// DefaultRetryPolicy matches the engine's documented defaults: a 60s total
// retry budget with a gently growing exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.2,
		MaxElapsed:    60 * time.Second,
	}
}

var retryableErrorCodes = map[string]bool{
	"ThrottlingException":                   true,
	"ProvisionedThroughputExceededException": true,
	"LimitExceededException":                true,
	"ResourceInUseException":                 true,
}

// errorCode extracts a DynamoDB/smithy API error code from err, or "" if err
// doesn't carry one.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isExempt reports whether code appears in exemptCodes; ResourceNotFoundException
// is always exempt so "absent item" decisions are made at the call site, never retried.
func isExempt(code string, exemptCodes []string) bool {
	if code == "ResourceNotFoundException" {
		return true
	}
	for _, exempt := range exemptCodes {
		if exempt == code {
			return true
		}
	}
	return false
}

// Exec invokes action, retrying on a recognized throttling/contention error
// code with exponential backoff until policy.MaxElapsed elapses or action
// succeeds. Errors in exemptCodes (and ResourceNotFoundException, always)
// are returned immediately without a retry. A fresh request-correlation id
// is generated for the retry log lines; use ExecWithID to supply one.
func Exec(ctx context.Context, policy RetryPolicy, exemptCodes []string, action func(ctx context.Context) error) error {
	return ExecWithID(ctx, "", policy, exemptCodes, action)
}

// ExecWithID behaves like Exec but logs correlationID instead of generating
// a fresh one, so a caller's batch re-submission loop can tie every retry
// log line across every chunk back to one top-level call.
func ExecWithID(ctx context.Context, correlationID string, policy RetryPolicy, exemptCodes []string, action func(ctx context.Context) error) error {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	start := time.Now()
	delay := policy.InitialDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := action(ctx)
		if err == nil {
			return nil
		}

		code := errorCode(err)
		if code == "" || isExempt(code, exemptCodes) || !retryableErrorCodes[code] {
			return err
		}

		elapsed := time.Since(start)
		if elapsed >= policy.MaxElapsed {
			return &pocoerrors.TransientStoreError{Err: pocoerrors.ErrTimeout, Code: code}
		}

		wait := backoffDelay(delay, policy)
		log.Printf("pocodynamo: retrying after %s (request=%s attempt=%d code=%s)", wait, correlationID, attempt+1, code)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(math.Min(float64(delay)*policy.BackoffFactor, float64(policy.MaxDelay)))
	}
}

func backoffDelay(base time.Duration, policy RetryPolicy) time.Duration {
	if policy.Jitter <= 0 {
		return base
	}
	jitterRange := float64(base) * policy.Jitter
	offset := (rand.Float64()*2 - 1) * jitterRange
	wait := time.Duration(float64(base) + offset)
	if wait < 0 {
		wait = base
	}
	return wait
}
