// Package session builds the AWS configuration and service clients
// PocoDynamo runs requests through.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// configLoadFunc is a variable so tests can substitute config.LoadDefaultConfig.
var configLoadFunc = config.LoadDefaultConfig

// KMSClient is the minimal KMS surface the encryption package needs for
// envelope-encrypting `encrypted`-tagged fields.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// STSClient is the minimal STS surface used for the optional identity check
// at session construction.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Config holds everything needed to build a Session.
type Config struct {
	CredentialsProvider aws.CredentialsProvider
	Region              string
	Endpoint            string

	// KMSKeyARN is required when any registered type has an `encrypted`-tagged
	// field. PocoDynamo never manages KMS keys itself.
	KMSKeyARN      string
	KMSClient      KMSClient        `yaml:"-"`
	EncryptionRand io.Reader        `yaml:"-"`
	Now            func() time.Time `yaml:"-"`

	// VerifyIdentity calls sts.GetCallerIdentity once at session construction
	// and fails fast if the configured credentials don't resolve.
	VerifyIdentity bool
	STSClient      STSClient `yaml:"-"`

	AWSConfigOptions []func(*config.LoadOptions) error `yaml:"-"`
	DynamoDBOptions  []func(*dynamodb.Options)         `yaml:"-"`

	MaxRetries              int
	DefaultReadCapacity     int64 `yaml:"defaultReadCapacity"`
	DefaultWriteCapacity    int64 `yaml:"defaultWriteCapacity"`
	PollTableStatusInterval time.Duration `yaml:"pollTableStatusInterval"`
	MaxRetryOnExceptionTime time.Duration `yaml:"maxRetryOnExceptionTimeout"`
	PagingLimit             int           `yaml:"pagingLimit"`
}

// DefaultConfig returns the spec's documented defaults: a 2s status-poll
// interval, a 60s total retry budget, and a 1000-item default paging limit.
func DefaultConfig() *Config {
	return &Config{
		Region:                  "us-east-1",
		MaxRetries:              3,
		DefaultReadCapacity:     5,
		DefaultWriteCapacity:    5,
		PollTableStatusInterval: 2 * time.Second,
		MaxRetryOnExceptionTime: 60 * time.Second,
		PagingLimit:             1000,
	}
}

// Session owns the loaded AWS config and the DynamoDB/KMS clients derived from it.
type Session struct {
	config    *Config
	awsConfig aws.Config
	client    *dynamodb.Client
	kms       KMSClient
}

// New loads the AWS config described by cfg and builds the DynamoDB client
// (and, if cfg.KMSKeyARN is set, a KMS client). If cfg.VerifyIdentity is
// set, it calls sts.GetCallerIdentity once before returning.
func New(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+4)
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}
	if cfg.CredentialsProvider != nil {
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))

	httpClient := &http.Client{Timeout: 30 * time.Second}
	options = append(options, config.WithHTTPClient(httpClient))
	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("pocodynamo: loading AWS config: %w", err)
	}

	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) { o.MaxAttempts = maxAttempts })
		}
	}

	clientOptions := make([]func(*dynamodb.Options), 0, 1+len(cfg.DynamoDBOptions))
	clientOptions = append(clientOptions, func(o *dynamodb.Options) {
		o.Region = awsConfig.Region
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if o.Retryer == nil {
			o.Retryer = awsConfig.Retryer()
		}
		if o.HTTPClient == nil {
			o.HTTPClient = httpClient
		}
	})
	clientOptions = append(clientOptions, cfg.DynamoDBOptions...)

	client := dynamodb.NewFromConfig(awsConfig, clientOptions...)

	sess := &Session{config: cfg, awsConfig: awsConfig, client: client}

	if cfg.KMSKeyARN != "" {
		if cfg.KMSClient != nil {
			sess.kms = cfg.KMSClient
		} else {
			sess.kms = kms.NewFromConfig(awsConfig)
		}
	}

	if cfg.VerifyIdentity {
		if err := sess.verifyIdentity(ctx); err != nil {
			return nil, err
		}
	}

	return sess, nil
}

func (s *Session) verifyIdentity(ctx context.Context) error {
	client := s.config.STSClient
	if client == nil {
		client = sts.NewFromConfig(s.awsConfig)
	}
	_, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("pocodynamo: verifying caller identity: %w", err)
	}
	return nil
}

// Client returns the DynamoDB client.
func (s *Session) Client() *dynamodb.Client { return s.client }

// KMS returns the KMS client, or nil if no KMSKeyARN was configured.
func (s *Session) KMS() KMSClient { return s.kms }

// Config returns the configuration this session was built from.
func (s *Session) Config() *Config { return s.config }

// AWSConfig returns the resolved AWS SDK configuration.
func (s *Session) AWSConfig() aws.Config { return s.awsConfig }
