package session

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, int64(5), cfg.DefaultReadCapacity)
	assert.Equal(t, int64(5), cfg.DefaultWriteCapacity)
	assert.Equal(t, 1000, cfg.PagingLimit)
}

func TestNewBuildsClientFromLoadedConfig(t *testing.T) {
	original := configLoadFunc
	defer func() { configLoadFunc = original }()

	configLoadFunc = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-west-2"}, nil
	}

	sess, err := New(context.Background(), &Config{Region: "us-west-2"})
	require.NoError(t, err)
	require.NotNil(t, sess.Client())
	assert.Equal(t, "us-west-2", sess.AWSConfig().Region)
	assert.Nil(t, sess.KMS())
}

func TestNewPropagatesConfigLoadError(t *testing.T) {
	original := configLoadFunc
	defer func() { configLoadFunc = original }()

	configLoadFunc = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}

	_, err := New(context.Background(), DefaultConfig())
	require.Error(t, err)
}

func TestNewBuildsKMSClientWhenKeyConfigured(t *testing.T) {
	original := configLoadFunc
	defer func() { configLoadFunc = original }()

	configLoadFunc = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}

	sess, err := New(context.Background(), &Config{Region: "us-east-1", KMSKeyARN: "arn:aws:kms:us-east-1:123456789012:key/abc"})
	require.NoError(t, err)
	assert.NotNil(t, sess.KMS())
}
