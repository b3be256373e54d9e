package client

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/pkg/codec"
	pocoerrors "github.com/pocodynamo/pocodynamo/pkg/errors"
	"github.com/pocodynamo/pocodynamo/pkg/mocks"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

type widget struct {
	ID   int `pocodynamo:"hash"`
	Name string
}

func newTestClient(t *testing.T) (*Client, *mocks.MockDynamoDBClient) {
	t.Helper()
	api := new(mocks.MockDynamoDBClient)
	registry := model.NewRegistry()
	_, err := registry.Register(&widget{})
	require.NoError(t, err)
	return NewWithAPI(api, registry, codec.New()), api
}

func TestClient_GetItem_AbsentLeavesZeroValue(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.GetItemOutput{}, nil).
		Once()

	var got widget
	err := c.GetItem(context.Background(), &got, 1)
	require.NoError(t, err)
	require.Equal(t, widget{}, got)
	api.AssertExpectations(t)
}

func TestClient_GetItem_DecodesFoundItem(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.GetItemOutput{
			Item: map[string]ddbtypes.AttributeValue{
				"id":   &ddbtypes.AttributeValueMemberN{Value: "1"},
				"name": &ddbtypes.AttributeValueMemberS{Value: "foo"},
			},
		}, nil).
		Once()

	var got widget
	err := c.GetItem(context.Background(), &got, 1)
	require.NoError(t, err)
	require.Equal(t, widget{ID: 1, Name: "foo"}, got)
}

func TestClient_GetItem_TranslatesResourceNotFound(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return((*dynamodb.GetItemOutput)(nil), &ddbtypes.ResourceNotFoundException{}).
		Once()

	var got widget
	err := c.GetItem(context.Background(), &got, 1)
	require.ErrorIs(t, err, pocoerrors.ErrNotFound)
}

func TestClient_PutItem_SendsEncodedItem(t *testing.T) {
	c, api := newTestClient(t)
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		av, ok := in.Item["name"].(*ddbtypes.AttributeValueMemberS)
		return ok && av.Value == "foo"
	}), mock.Anything).
		Return(&dynamodb.PutItemOutput{}, nil).
		Once()

	err := c.PutItem(context.Background(), &widget{ID: 1, Name: "foo"})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestClient_DeleteItem_BuildsKeyFromHash(t *testing.T) {
	c, api := newTestClient(t)
	api.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		av, ok := in.Key["id"].(*ddbtypes.AttributeValueMemberN)
		return ok && av.Value == "1"
	}), mock.Anything).
		Return(&dynamodb.DeleteItemOutput{}, nil).
		Once()

	err := c.DeleteItem(context.Background(), &widget{}, 1)
	require.NoError(t, err)
}

func TestClient_Increment_ReturnsUpdatedValue(t *testing.T) {
	c, api := newTestClient(t)
	api.On("UpdateItem", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.UpdateItemOutput{
			Attributes: map[string]ddbtypes.AttributeValue{
				"id": &ddbtypes.AttributeValueMemberN{Value: "5"},
			},
		}, nil).
		Once()

	got, err := c.Increment(context.Background(), &widget{}, 1, "ID", 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), got)
}

func TestClient_GetItems_ChunksAcrossResponses(t *testing.T) {
	c, api := newTestClient(t)
	api.On("BatchGetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.BatchGetItemOutput{
			Responses: map[string][]map[string]ddbtypes.AttributeValue{
				"widgets": {
					{"id": &ddbtypes.AttributeValueMemberN{Value: "1"}, "name": &ddbtypes.AttributeValueMemberS{Value: "a"}},
					{"id": &ddbtypes.AttributeValueMemberN{Value: "2"}, "name": &ddbtypes.AttributeValueMemberS{Value: "b"}},
				},
			},
		}, nil).
		Once()

	var got []widget
	err := c.GetItems(context.Background(), &got, []Key{{Hash: 1}, {Hash: 2}})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestClient_PutItems_EmptySliceIsNoOp(t *testing.T) {
	c, api := newTestClient(t)
	err := c.PutItems(context.Background(), []widget{})
	require.NoError(t, err)
	api.AssertNotCalled(t, "BatchWriteItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestClient_PutRelated_RequiresRangeKey(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.PutRelated(context.Background(), 1, []widget{{ID: 1}})
	require.Error(t, err)
}
