package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocodynamo/pocodynamo/pkg/model"
)

type BasicRecord struct {
	ID   string `pocodynamo:"hash"`
	Name string
}

type CompositeKeyRecord struct {
	UserID    string    `pocodynamo:"hash"`
	Timestamp time.Time `pocodynamo:"range"`
	Data      string
}

type IndexedRecord struct {
	ID       string  `pocodynamo:"hash"`
	Email    string  `pocodynamo:"index:gsi-email"`
	Category string  `pocodynamo:"index:gsi-category-price,pk"`
	Status   string  `pocodynamo:"lsi:lsi-status"`
	Price    float64 `pocodynamo:"index:gsi-category-price,sk"`
}

type SpecialFieldsRecord struct {
	CreatedAt time.Time `pocodynamo:"created_at"`
	UpdatedAt time.Time `pocodynamo:"updated_at"`
	ID        string    `pocodynamo:"hash"`
	Version   int       `pocodynamo:"version"`
}

type CustomAttributeRecord struct {
	ID       string   `pocodynamo:"hash,attr:userId"`
	UserName string   `pocodynamo:"attr:username"`
	Tags     []string `pocodynamo:"set"`
}

type InferredHashRecord struct {
	Id   string
	Name string
}

type EncryptedRecord struct {
	ID     string `pocodynamo:"hash"`
	Secret string `pocodynamo:"encrypted"`
}

type InvalidEncryptedKeyRecord struct {
	ID string `pocodynamo:"hash,encrypted"`
}

func TestRegisterBasicRecord(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&BasicRecord{})
	require.NoError(t, err)

	assert.Equal(t, "BasicRecords", table.Name)
	require.NotNil(t, table.HashKey)
	assert.Equal(t, "ID", table.HashKey.Name)
	assert.Nil(t, table.RangeKey)
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := model.NewRegistry()

	first, err := reg.Register(&BasicRecord{})
	require.NoError(t, err)
	second, err := reg.Register(&BasicRecord{})
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestRegisterCompositeKeyRecord(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&CompositeKeyRecord{})
	require.NoError(t, err)

	require.NotNil(t, table.HashKey)
	require.NotNil(t, table.RangeKey)
	assert.Equal(t, "UserID", table.HashKey.Name)
	assert.Equal(t, "Timestamp", table.RangeKey.Name)
}

func TestRegisterIndexedRecord(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&IndexedRecord{})
	require.NoError(t, err)

	emailIdx, ok := table.Index("gsi-email")
	require.True(t, ok)
	assert.Equal(t, model.GlobalIndex, emailIdx.Kind)
	require.NotNil(t, emailIdx.HashKey)
	assert.Equal(t, "Email", emailIdx.HashKey.Name)

	catIdx, ok := table.Index("gsi-category-price")
	require.True(t, ok)
	require.NotNil(t, catIdx.HashKey)
	require.NotNil(t, catIdx.RangeKey)
	assert.Equal(t, "Category", catIdx.HashKey.Name)
	assert.Equal(t, "Price", catIdx.RangeKey.Name)

	statusIdx, ok := table.Index("lsi-status")
	require.True(t, ok)
	assert.Equal(t, model.LocalIndex, statusIdx.Kind)
	require.NotNil(t, statusIdx.HashKey)
	assert.Equal(t, table.HashKey, statusIdx.HashKey)
}

func TestRegisterSpecialFields(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&SpecialFieldsRecord{})
	require.NoError(t, err)

	require.NotNil(t, table.VersionField)
	require.NotNil(t, table.CreatedAtField)
	require.NotNil(t, table.UpdatedAtField)
	assert.Equal(t, "Version", table.VersionField.Name)
}

func TestRegisterCustomAttributeNames(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&CustomAttributeRecord{})
	require.NoError(t, err)

	assert.Equal(t, "userId", table.HashKey.DBName)
	userName, ok := table.FieldsByName["UserName"]
	require.True(t, ok)
	assert.Equal(t, "username", userName.DBName)

	tags, ok := table.FieldsByName["Tags"]
	require.True(t, ok)
	assert.Equal(t, model.StringSet, tags.DBType)
	assert.True(t, tags.ForceSet)
}

func TestRegisterInfersHashKeyFromIdField(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&InferredHashRecord{})
	require.NoError(t, err)

	require.NotNil(t, table.HashKey)
	assert.Equal(t, "Id", table.HashKey.Name)
}

func TestRegisterCompositeKeyOption(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&BasicRecord{}, model.WithCompositeKey("Name", ""))
	require.NoError(t, err)

	assert.Equal(t, "Name", table.HashKey.Name)
}

func TestRegisterEncryptedField(t *testing.T) {
	reg := model.NewRegistry()

	table, err := reg.Register(&EncryptedRecord{})
	require.NoError(t, err)

	secret, ok := table.FieldsByName["Secret"]
	require.True(t, ok)
	assert.True(t, secret.IsEncrypted)
}

func TestRegisterRejectsEncryptedKeyField(t *testing.T) {
	reg := model.NewRegistry()

	_, err := reg.Register(&InvalidEncryptedKeyRecord{})
	require.Error(t, err)
}
