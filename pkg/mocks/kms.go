package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/mock"
)

// MockKMSClient implements session.KMSClient.
//
//	m := new(mocks.MockKMSClient)
//	m.On("GenerateDataKey", mock.Anything, mock.Anything, mock.Anything).
//		Return(&kms.GenerateDataKeyOutput{Plaintext: key, CiphertextBlob: edk}, nil)
type MockKMSClient struct {
	mock.Mock
}

func (m *MockKMSClient) GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, opts ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	args := m.Called(ctx, params, opts)
	return outputOrNil[*kms.GenerateDataKeyOutput](args)
}

func (m *MockKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, opts ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	args := m.Called(ctx, params, opts)
	return outputOrNil[*kms.DecryptOutput](args)
}

// MockSTSClient implements session.STSClient.
type MockSTSClient struct {
	mock.Mock
}

func (m *MockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, opts ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	args := m.Called(ctx, params, opts)
	return outputOrNil[*sts.GetCallerIdentityOutput](args)
}
