// Package mocks provides testify-based mock implementations of the AWS SDK
// surfaces pkg/coreapi and pkg/session depend on, so the request engine,
// schema manager, and encryption service can be tested without a live
// DynamoDB/KMS endpoint.
package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/mock"
)

// MockDynamoDBClient implements coreapi.DynamoDBAPI.
//
//	m := new(mocks.MockDynamoDBClient)
//	m.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
//		Return(&dynamodb.GetItemOutput{Item: item}, nil)
type MockDynamoDBClient struct {
	mock.Mock
}

func (m *MockDynamoDBClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.GetItemOutput](args)
}

func (m *MockDynamoDBClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.PutItemOutput](args)
}

func (m *MockDynamoDBClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.DeleteItemOutput](args)
}

func (m *MockDynamoDBClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.UpdateItemOutput](args)
}

func (m *MockDynamoDBClient) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.BatchGetItemOutput](args)
}

func (m *MockDynamoDBClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.BatchWriteItemOutput](args)
}

func (m *MockDynamoDBClient) Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.QueryOutput](args)
}

func (m *MockDynamoDBClient) Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.ScanOutput](args)
}

func (m *MockDynamoDBClient) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.CreateTableOutput](args)
}

func (m *MockDynamoDBClient) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.DeleteTableOutput](args)
}

func (m *MockDynamoDBClient) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.DescribeTableOutput](args)
}

func (m *MockDynamoDBClient) ListTables(ctx context.Context, in *dynamodb.ListTablesInput, opts ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	args := m.Called(ctx, in, opts)
	return outputOrNil[*dynamodb.ListTablesOutput](args)
}

func outputOrNil[T any](args mock.Arguments) (T, error) {
	var zero T
	if args.Get(0) == nil {
		return zero, args.Error(1)
	}
	out, ok := args.Get(0).(T)
	if !ok {
		panic("mocks: unexpected return type for this call")
	}
	return out, args.Error(1)
}
