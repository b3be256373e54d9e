// Package schema creates and tears down the DynamoDB tables a registry's
// types describe, polling for readiness the way the engine's other
// long-running operations poll for throttling recovery.
package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pocodynamo/pocodynamo/pkg/coreapi"
	"github.com/pocodynamo/pocodynamo/pkg/model"
)

// Manager creates, inspects, and deletes the tables a Registry's
// registered types describe.
type Manager struct {
	api          coreapi.DynamoDBAPI
	registry     *model.Registry
	pollInterval time.Duration
}

// NewManager builds a Manager. pollInterval is the readiness-poll cadence
// used by InitSchema/CreateMissing/DeleteAll (the session's
// PollTableStatusInterval).
func NewManager(api coreapi.DynamoDBAPI, registry *model.Registry, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Manager{api: api, registry: registry, pollInterval: pollInterval}
}

// InitSchema creates every table missing from the store for the registry's
// currently registered types and blocks until each reports Active. It
// returns false, rather than an error, if timeout elapses before every
// table is ready.
func (m *Manager) InitSchema(ctx context.Context, timeout time.Duration) (bool, error) {
	return m.CreateMissing(ctx, m.registry.All(), timeout)
}

// CreateMissing lists existing tables, issues CreateTable for each table
// descriptor absent from the store, then polls every pollInterval until
// each becomes Active or timeout elapses.
func (m *Manager) CreateMissing(ctx context.Context, tables []*model.TableDescriptor, timeout time.Duration) (bool, error) {
	existing, err := m.listTableNames(ctx)
	if err != nil {
		return false, err
	}

	var pending []string
	for _, table := range tables {
		if existing[table.Name] {
			continue
		}
		if err := m.createTable(ctx, table); err != nil {
			return false, err
		}
		pending = append(pending, table.Name)
	}

	return m.waitForTablesActive(ctx, pending, timeout)
}

// DeleteAll issues DeleteTable for every table the registry currently
// describes and blocks, mirroring CreateMissing, until each disappears or
// timeout elapses.
func (m *Manager) DeleteAll(ctx context.Context, timeout time.Duration) (bool, error) {
	tables := m.registry.All()
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		_, err := m.api.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(table.Name)})
		if err != nil {
			var notFound *ddbtypes.ResourceNotFoundException
			if errors.As(err, &notFound) {
				continue
			}
			return false, fmt.Errorf("pocodynamo: deleting table %s: %w", table.Name, err)
		}
		names = append(names, table.Name)
	}
	return m.waitForTablesDeleted(ctx, names, timeout)
}

func (m *Manager) listTableNames(ctx context.Context) (map[string]bool, error) {
	names := make(map[string]bool)
	var start *string
	for {
		out, err := m.api.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: start})
		if err != nil {
			return nil, fmt.Errorf("pocodynamo: listing tables: %w", err)
		}
		for _, name := range out.TableNames {
			names[name] = true
		}
		if out.LastEvaluatedTableName == nil {
			return names, nil
		}
		start = out.LastEvaluatedTableName
	}
}

func (m *Manager) createTable(ctx context.Context, table *model.TableDescriptor) error {
	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(table.Name),
		BillingMode:          ddbtypes.BillingModePayPerRequest,
		KeySchema:            buildKeySchema(table.HashKey, table.RangeKey),
		AttributeDefinitions: buildAttributeDefinitions(table),
	}

	if table.ReadCapacity > 0 || table.WriteCapacity > 0 {
		input.BillingMode = ddbtypes.BillingModeProvisioned
		input.ProvisionedThroughput = &ddbtypes.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(nonZero(table.ReadCapacity, 5)),
			WriteCapacityUnits: aws.Int64(nonZero(table.WriteCapacity, 5)),
		}
	}

	if gsis := buildGlobalIndexes(table); len(gsis) > 0 {
		input.GlobalSecondaryIndexes = gsis
	}
	if lsis := buildLocalIndexes(table); len(lsis) > 0 {
		input.LocalSecondaryIndexes = lsis
	}

	_, err := m.api.CreateTable(ctx, input)
	if err != nil {
		var inUse *ddbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("pocodynamo: creating table %s: %w", table.Name, err)
	}
	return nil
}

func nonZero(v, fallback int64) int64 {
	if v > 0 {
		return v
	}
	return fallback
}

func buildKeySchema(hash, rangeKey *model.FieldDescriptor) []ddbtypes.KeySchemaElement {
	schema := []ddbtypes.KeySchemaElement{
		{AttributeName: aws.String(hash.DBName), KeyType: ddbtypes.KeyTypeHash},
	}
	if rangeKey != nil {
		schema = append(schema, ddbtypes.KeySchemaElement{AttributeName: aws.String(rangeKey.DBName), KeyType: ddbtypes.KeyTypeRange})
	}
	return schema
}

func buildAttributeDefinitions(table *model.TableDescriptor) []ddbtypes.AttributeDefinition {
	seen := make(map[string]ddbtypes.ScalarAttributeType)
	add := func(f *model.FieldDescriptor) {
		if f == nil {
			return
		}
		seen[f.DBName] = scalarAttributeType(f.DBType)
	}

	add(table.HashKey)
	add(table.RangeKey)
	for _, idx := range table.LocalIndexes {
		add(idx.HashKey)
		add(idx.RangeKey)
	}
	for _, idx := range table.GlobalIndexes {
		add(idx.HashKey)
		add(idx.RangeKey)
	}

	defs := make([]ddbtypes.AttributeDefinition, 0, len(seen))
	for name, attrType := range seen {
		defs = append(defs, ddbtypes.AttributeDefinition{AttributeName: aws.String(name), AttributeType: attrType})
	}
	return defs
}

func scalarAttributeType(t model.DBType) ddbtypes.ScalarAttributeType {
	switch t {
	case model.Number:
		return ddbtypes.ScalarAttributeTypeN
	case model.Binary:
		return ddbtypes.ScalarAttributeTypeB
	default:
		return ddbtypes.ScalarAttributeTypeS
	}
}

func buildProjection(idx model.IndexDescriptor) *ddbtypes.Projection {
	switch idx.Projection {
	case model.ProjectKeysOnly:
		return &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeKeysOnly}
	case model.ProjectInclude:
		return &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeInclude, NonKeyAttributes: idx.ProjectedFields}
	default:
		return &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll}
	}
}

func buildGlobalIndexes(table *model.TableDescriptor) []ddbtypes.GlobalSecondaryIndex {
	var gsis []ddbtypes.GlobalSecondaryIndex
	for _, idx := range table.GlobalIndexes {
		gsi := ddbtypes.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  buildKeySchema(idx.HashKey, idx.RangeKey),
			Projection: buildProjection(idx),
		}
		if idx.ReadCapacity > 0 || idx.WriteCapacity > 0 {
			gsi.ProvisionedThroughput = &ddbtypes.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(nonZero(idx.ReadCapacity, 5)),
				WriteCapacityUnits: aws.Int64(nonZero(idx.WriteCapacity, 5)),
			}
		}
		gsis = append(gsis, gsi)
	}
	return gsis
}

func buildLocalIndexes(table *model.TableDescriptor) []ddbtypes.LocalSecondaryIndex {
	var lsis []ddbtypes.LocalSecondaryIndex
	for _, idx := range table.LocalIndexes {
		lsis = append(lsis, ddbtypes.LocalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  buildKeySchema(table.HashKey, idx.RangeKey),
			Projection: buildProjection(idx),
		})
	}
	return lsis
}

func (m *Manager) waitForTablesActive(ctx context.Context, names []string, timeout time.Duration) (bool, error) {
	return m.pollUntil(ctx, names, timeout, func(status ddbtypes.TableStatus, err error) (done bool, keepErr error) {
		if err != nil {
			var notFound *ddbtypes.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return false, nil
			}
			return false, err
		}
		return status == ddbtypes.TableStatusActive, nil
	})
}

func (m *Manager) waitForTablesDeleted(ctx context.Context, names []string, timeout time.Duration) (bool, error) {
	return m.pollUntil(ctx, names, timeout, func(status ddbtypes.TableStatus, err error) (done bool, keepErr error) {
		if err != nil {
			var notFound *ddbtypes.ResourceNotFoundException
			if errors.As(err, &notFound) {
				return true, nil
			}
			return false, err
		}
		return false, nil
	})
}

// pollUntil polls DescribeTable for every name in names every pollInterval,
// removing a name from the outstanding set once check reports it done.
// Returns true once the outstanding set is empty, false if timeout elapses
// first.
func (m *Manager) pollUntil(ctx context.Context, names []string, timeout time.Duration, check func(ddbtypes.TableStatus, error) (bool, error)) (bool, error) {
	outstanding := make(map[string]bool, len(names))
	for _, n := range names {
		outstanding[n] = true
	}
	if len(outstanding) == 0 {
		return true, nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		for name := range outstanding {
			out, err := m.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
			var status ddbtypes.TableStatus
			if out != nil && out.Table != nil {
				status = out.Table.TableStatus
			}
			done, checkErr := check(status, err)
			if checkErr != nil {
				return false, fmt.Errorf("pocodynamo: polling table %s: %w", name, checkErr)
			}
			if done {
				delete(outstanding, name)
			}
		}
		if len(outstanding) == 0 {
			return true, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
