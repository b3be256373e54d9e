package sequence

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/pkg/client"
	"github.com/pocodynamo/pocodynamo/pkg/codec"
	"github.com/pocodynamo/pocodynamo/pkg/mocks"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

func newTestSource(t *testing.T) (*Source, *mocks.MockDynamoDBClient) {
	t.Helper()
	api := new(mocks.MockDynamoDBClient)
	registry := model.NewRegistry()
	cli := client.NewWithAPI(api, registry, codec.New())
	src, err := NewSource(cli)
	require.NoError(t, err)
	return src, api
}

func TestSource_Current_UnknownKeyReturnsZero(t *testing.T) {
	src, api := newTestSource(t)

	api.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.GetItemOutput{}, nil).
		Once()

	got, err := src.Current(context.Background(), "orders")
	require.NoError(t, err)
	require.Equal(t, int64(0), got)
	api.AssertExpectations(t)
}

func TestSource_Next_IncrementsByOne(t *testing.T) {
	src, api := newTestSource(t)

	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return in != nil && in.TableName != nil && *in.TableName != ""
	}), mock.Anything).
		Return(&dynamodb.UpdateItemOutput{
			Attributes: map[string]ddbtypes.AttributeValue{
				"counter": &ddbtypes.AttributeValueMemberN{Value: "1"},
			},
		}, nil).
		Once()

	got, err := src.Next(context.Background(), "orders")
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
	api.AssertExpectations(t)
}

func TestSource_NextN_ReservesBlock(t *testing.T) {
	src, api := newTestSource(t)

	api.On("UpdateItem", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.UpdateItemOutput{
			Attributes: map[string]ddbtypes.AttributeValue{
				"counter": &ddbtypes.AttributeValueMemberN{Value: "10"},
			},
		}, nil).
		Once()

	got, err := src.NextN(context.Background(), "orders", 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), got)
}

func TestNewSortableID_ReturnsDistinctULIDs(t *testing.T) {
	first, err := NewSortableID()
	require.NoError(t, err)
	second, err := NewSortableID()
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Len(t, first, 26)
}
