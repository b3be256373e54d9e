package expr_test

import (
	"fmt"
	"testing"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/internal/expr"
)

// stubEncoder encodes strings and ints only, enough to exercise the builder
// without depending on the codec package.
type stubEncoder struct{}

func (stubEncoder) Encode(value any) (ddbtypes.AttributeValue, error) {
	switch v := value.(type) {
	case string:
		return &ddbtypes.AttributeValueMemberS{Value: v}, nil
	case int:
		return &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}, nil
	default:
		return nil, fmt.Errorf("stubEncoder: unsupported type %T", value)
	}
}

func TestAddKeyConditionSimpleEquality(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.AddKeyCondition(expr.Eq("id", "123")))

	c := b.Build()
	assert.Equal(t, "#n1 = :v1", c.KeyConditionExpression)
	assert.Equal(t, "id", c.ExpressionAttributeNames["#n1"])
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "123"}, c.ExpressionAttributeValues[":v1"])
}

func TestAddKeyConditionReservedWordEscaped(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.AddKeyCondition(expr.Gt("timestamp", 1000)))

	c := b.Build()
	assert.Equal(t, "#TIMESTAMP > :v1", c.KeyConditionExpression)
}

func TestAddKeyConditionBeginsWith(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.AddKeyCondition(expr.BeginsWith("sk", "USER#")))

	c := b.Build()
	assert.Equal(t, "begins_with(#n1, :v1)", c.KeyConditionExpression)
}

func TestAddKeyConditionBetween(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.AddKeyCondition(expr.Between("timestamp", 1000, 2000)))

	c := b.Build()
	assert.Equal(t, "#TIMESTAMP BETWEEN :v1 AND :v2", c.KeyConditionExpression)
}

func TestAddFilterAndOr(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	pred := expr.And(
		expr.Eq("status", "active"),
		expr.Or(expr.Gt("score", 10), expr.Lt("score", 0)),
	)
	require.NoError(t, b.AddFilter(pred))

	c := b.Build()
	assert.Equal(t, "(#STATUS = :v1 AND (#n1 > :v2 OR #n1 < :v3))", c.FilterExpression)
}

func TestAddFilterNot(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.AddFilter(expr.Not(expr.Exists("deletedAt"))))

	c := b.Build()
	assert.Equal(t, "NOT (attribute_exists(#n1))", c.FilterExpression)
}

func TestInRejectsOverOneHundredValues(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	values := make([]any, 101)
	for i := range values {
		values[i] = i
	}
	err := b.AddFilter(expr.In("status", values...))
	require.Error(t, err)
}

func TestUpdateExpressionClauses(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.SetField("name", "updated"))
	require.NoError(t, b.AddToNumber("version", 1))
	b.RemoveField("tempFlag")

	c := b.Build()
	assert.Contains(t, c.UpdateExpression, "SET #NAME = :v1")
	assert.Contains(t, c.UpdateExpression, "ADD #n1 :v2")
	assert.Contains(t, c.UpdateExpression, "REMOVE #n2")
}

func TestSetFieldIfNotExists(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.SetFieldIfNotExists("createdAt", "2024-01-01"))

	c := b.Build()
	assert.Equal(t, "SET #n1 = if_not_exists(#n1, :v1)", c.UpdateExpression)
}

func TestCloneIsIndependent(t *testing.T) {
	b := expr.NewBuilder(stubEncoder{})
	require.NoError(t, b.AddFilter(expr.Eq("status", "active")))

	clone := b.Clone()
	require.NoError(t, clone.AddFilter(expr.Eq("region", "us-east-1")))

	assert.NotEqual(t, b.Build().FilterExpression, clone.Build().FilterExpression)
}

func TestFieldsCollectsEveryLeaf(t *testing.T) {
	pred := expr.And(expr.Eq("a", 1), expr.Or(expr.Gt("b", 2), expr.NotExists("c")))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, expr.Fields(pred))
}
