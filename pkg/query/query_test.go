package query_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/internal/expr"
	"github.com/pocodynamo/pocodynamo/pkg/client"
	"github.com/pocodynamo/pocodynamo/pkg/codec"
	"github.com/pocodynamo/pocodynamo/pkg/mocks"
	"github.com/pocodynamo/pocodynamo/pkg/model"
	"github.com/pocodynamo/pocodynamo/pkg/query"
)

// Order has a composite key, a local index routed through the table's hash
// key, and a global index routed through Date alone.
type Order struct {
	CustomerId int `pocodynamo:"hash"`
	OrderId    int `pocodynamo:"range"`
	Total      float64
	Status     string `pocodynamo:"lsi:OrderByStatus"`
	Date       string `pocodynamo:"index:OrderByDate"`
}

// OrderSummary is a narrower, independently registered projection of Order,
// used to exercise ExecInto's decode-against-its-own-table behavior.
type OrderSummary struct {
	CustomerId int `pocodynamo:"hash"`
	OrderId    int `pocodynamo:"range"`
	Total      float64
}

func newTestOrderClient(t *testing.T) (*client.Client, *mocks.MockDynamoDBClient) {
	t.Helper()
	api := new(mocks.MockDynamoDBClient)
	registry := model.NewRegistry()
	_, err := registry.Register(&Order{})
	require.NoError(t, err)
	_, err = registry.Register(&OrderSummary{})
	require.NoError(t, err)
	return client.NewWithAPI(api, registry, codec.New()), api
}

func orderItem(customerID, orderID int, total float64) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"customerId": &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(customerID)},
		"orderId":    &ddbtypes.AttributeValueMemberN{Value: strconv.Itoa(orderID)},
		"total":      &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(total, 'f', -1, 64)},
	}
}

// Scenario 3: FromQuery + Filter, default ascending order.
func TestBuilder_FromQueryFilter_DefaultsAscending(t *testing.T) {
	c, api := newTestOrderClient(t)

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.TableName) == "Orders" &&
			in.IndexName == nil &&
			in.ScanIndexForward != nil && *in.ScanIndexForward &&
			in.FilterExpression != nil
	}), mock.Anything).
		Return(&dynamodb.QueryOutput{
			Items: []map[string]ddbtypes.AttributeValue{
				orderItem(7, 1, 150),
				orderItem(7, 2, 50),
			},
		}, nil).
		Once()

	b, err := query.FromQuery(c, &Order{}, expr.Eq("customerId", 7))
	require.NoError(t, err)
	b = b.Filter(expr.Gt("total", 100))

	it, err := b.Exec()
	require.NoError(t, err)

	var got []Order
	var o Order
	for it.Next(context.Background(), &o) {
		got = append(got, o)
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 2)
	api.AssertExpectations(t)
}

// Scenario 4: index routing and global-index consistency weakening.
func TestBuilder_LocalIndex_KeepsConsistentReadDefault(t *testing.T) {
	c, api := newTestOrderClient(t)

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == "OrderByStatus" &&
			in.ConsistentRead != nil && *in.ConsistentRead
	}), mock.Anything).
		Return(&dynamodb.QueryOutput{}, nil).
		Once()

	built, err := query.FromQuery(c, &Order{})
	require.NoError(t, err)
	routed, err := built.LocalIndex(expr.Eq("status", "shipped"), "OrderByStatus")
	require.NoError(t, err)

	it, err := routed.Exec()
	require.NoError(t, err)
	it.Next(context.Background(), &Order{})
	require.NoError(t, it.Err())
	api.AssertExpectations(t)
}

func TestBuilder_FromQueryIndex_GlobalIndexWeakensConsistency(t *testing.T) {
	c, api := newTestOrderClient(t)

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == "OrderByDate" &&
			in.ConsistentRead != nil && !*in.ConsistentRead
	}), mock.Anything).
		Return(&dynamodb.QueryOutput{}, nil).
		Once()

	b, err := query.FromQueryIndex(c, &Order{}, "OrderByDate", expr.Eq("date", "2026-08-01"))
	require.NoError(t, err)

	it, err := b.Exec()
	require.NoError(t, err)
	it.Next(context.Background(), &Order{})
	require.NoError(t, it.Err())
	api.AssertExpectations(t)
}

func TestBuilder_FromQueryIndexInferred_ResolvesGlobalIndexFromField(t *testing.T) {
	c, api := newTestOrderClient(t)

	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == "OrderByDate"
	}), mock.Anything).
		Return(&dynamodb.QueryOutput{}, nil).
		Once()

	b, err := query.FromQueryIndexInferred(c, &Order{}, expr.Eq("date", "2026-08-01"))
	require.NoError(t, err)

	it, err := b.Exec()
	require.NoError(t, err)
	it.Next(context.Background(), &Order{})
	require.NoError(t, it.Err())
	api.AssertExpectations(t)
}

// Scenario 6: SelectTableFields + ExecInto into a narrower registered type.
func TestExecInto_DecodesAgainstItsOwnRegisteredTable(t *testing.T) {
	c, api := newTestOrderClient(t)

	api.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{
			Items: []map[string]ddbtypes.AttributeValue{
				orderItem(7, 1, 150),
			},
		}, nil).
		Once()

	b, err := query.FromQuery(c, &Order{}, expr.Eq("customerId", 7))
	require.NoError(t, err)
	b = b.SelectTableFields()

	summaries, err := query.ExecInto[OrderSummary](context.Background(), b)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, OrderSummary{CustomerId: 7, OrderId: 1, Total: 150}, summaries[0])
}

func TestBuilder_ValidateFields_RejectsUnknownField(t *testing.T) {
	c, _ := newTestOrderClient(t)

	b, err := query.FromQuery(c, &Order{}, expr.Eq("doesNotExist", 1))
	require.NoError(t, err)

	_, err = b.Exec()
	require.Error(t, err)
}
