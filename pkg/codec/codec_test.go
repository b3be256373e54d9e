package codec_test

import (
	"context"
	"testing"
	"time"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/pkg/codec"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

type widget struct {
	ID        string `pocodynamo:"hash"`
	Name      string
	Price     float64
	Tags      []string `pocodynamo:"set"`
	CreatedAt time.Time `pocodynamo:"created_at"`
	UpdatedAt time.Time `pocodynamo:"updated_at"`
	Version   int       `pocodynamo:"version"`
}

func registerWidget(t *testing.T) *model.TableDescriptor {
	t.Helper()
	reg := model.NewRegistry()
	table, err := reg.Register(&widget{})
	require.NoError(t, err)
	return table
}

func TestToAttributeValueScalars(t *testing.T) {
	c := codec.New()

	s, err := c.ToAttributeValue("hello")
	require.NoError(t, err)
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "hello"}, s)

	n, err := c.ToAttributeValue(42)
	require.NoError(t, err)
	assert.Equal(t, &ddbtypes.AttributeValueMemberN{Value: "42"}, n)

	b, err := c.ToAttributeValue(true)
	require.NoError(t, err)
	assert.Equal(t, &ddbtypes.AttributeValueMemberBOOL{Value: true}, b)
}

func TestMarshalItemStampsTimestampsAndVersion(t *testing.T) {
	c := codec.New()
	table := registerWidget(t)

	item := &widget{ID: "w1", Name: "Widget", Price: 9.99, Tags: []string{"a", "b"}, Version: 3}
	attrs, err := c.MarshalItem(context.Background(), item, table, false)
	require.NoError(t, err)

	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: "w1"}, attrs["id"])
	assert.Equal(t, &ddbtypes.AttributeValueMemberN{Value: "3"}, attrs["version"])
	assert.IsType(t, &ddbtypes.AttributeValueMemberSS{}, attrs["tags"])
	assert.Contains(t, attrs, "createdAt")
	assert.Contains(t, attrs, "updatedAt")
}

func TestMarshalItemPreservesCreatedAtOnUpdate(t *testing.T) {
	c := codec.New()
	table := registerWidget(t)

	item := &widget{ID: "w1"}
	attrs, err := c.MarshalItem(context.Background(), item, table, true)
	require.NoError(t, err)

	_, hasCreatedAt := attrs["createdAt"]
	assert.False(t, hasCreatedAt)
	assert.Contains(t, attrs, "updatedAt")
}

func TestRoundTripUnmarshalItem(t *testing.T) {
	c := codec.New()
	table := registerWidget(t)

	item := &widget{ID: "w1", Name: "Widget", Price: 9.99, Tags: []string{"a", "b"}, Version: 1}
	attrs, err := c.MarshalItem(context.Background(), item, table, false)
	require.NoError(t, err)

	var out widget
	require.NoError(t, c.UnmarshalItem(context.Background(), attrs, &out, table))

	assert.Equal(t, "w1", out.ID)
	assert.Equal(t, "Widget", out.Name)
	assert.Equal(t, 9.99, out.Price)
	assert.ElementsMatch(t, []string{"a", "b"}, out.Tags)
	assert.Equal(t, 1, out.Version)
}
