// Package lambdautil adapts a Lambda invocation's remaining execution
// budget into the per-call timeout knobs the request engine's retry
// wrapper already exposes.
package lambdautil

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/pocodynamo/pocodynamo/pkg/coreapi"
)

// DefaultSafetyBuffer is subtracted from the remaining Lambda budget before
// it's handed to the retry wrapper, leaving headroom for the runtime to
// flush logs and tear down the invocation.
const DefaultSafetyBuffer = 500 * time.Millisecond

// RemainingTime returns how long is left before ctx's deadline, minus
// buffer. It returns 0 if the deadline has already passed, and -1 if ctx
// carries no deadline at all (running outside Lambda).
func RemainingTime(ctx context.Context, buffer time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	remaining := time.Until(deadline) - buffer
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WithRemainingTime derives a RetryPolicy.MaxElapsed from ctx's Lambda
// deadline (minus DefaultSafetyBuffer), capping policy's own MaxElapsed so
// a retry loop never outlives the invocation. Outside Lambda (no context
// deadline) it returns policy unchanged.
func WithRemainingTime(ctx context.Context, policy coreapi.RetryPolicy) coreapi.RetryPolicy {
	remaining := RemainingTime(ctx, DefaultSafetyBuffer)
	if remaining < 0 {
		return policy
	}
	if remaining < policy.MaxElapsed {
		policy.MaxElapsed = remaining
	}
	return policy
}

// RequestID returns the invoking Lambda request's id, or "" outside Lambda.
// Nothing in the request engine calls it.
func RequestID(ctx context.Context) string {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok {
		return ""
	}
	return lc.AwsRequestID
}
