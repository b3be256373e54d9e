package coreapi_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/pkg/coreapi"
)

type fakeAPIError struct {
	code string
}

func (e *fakeAPIError) Error() string             { return e.code }
func (e *fakeAPIError) ErrorCode() string          { return e.code }
func (e *fakeAPIError) ErrorMessage() string       { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestExecSucceedsAfterThrottling(t *testing.T) {
	policy := coreapi.DefaultRetryPolicy()
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond

	attempts := 0
	err := coreapi.Exec(context.Background(), policy, nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &fakeAPIError{code: "ThrottlingException"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecDoesNotRetryResourceNotFound(t *testing.T) {
	policy := coreapi.DefaultRetryPolicy()
	attempts := 0
	err := coreapi.Exec(context.Background(), policy, nil, func(ctx context.Context) error {
		attempts++
		return &fakeAPIError{code: "ResourceNotFoundException"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecDoesNotRetryNonRetryableError(t *testing.T) {
	policy := coreapi.DefaultRetryPolicy()
	attempts := 0
	err := coreapi.Exec(context.Background(), policy, nil, func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecTimesOutAfterMaxElapsed(t *testing.T) {
	policy := coreapi.DefaultRetryPolicy()
	policy.InitialDelay = 2 * time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond
	policy.MaxElapsed = 5 * time.Millisecond

	err := coreapi.Exec(context.Background(), policy, nil, func(ctx context.Context) error {
		return &fakeAPIError{code: "ThrottlingException"}
	})

	require.Error(t, err)
}
