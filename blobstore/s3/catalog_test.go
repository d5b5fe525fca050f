package s3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/refdb/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + version

	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}

	version := func(item map[string]types.AttributeValue) uint64 {
		v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
		return v
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		if aws.ToBool(params.ScanIndexForward) {
			return int(version(a)) - int(version(b))
		}
		return int(version(b)) - int(version(a))
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestCatalog_FirstCommit(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(newMockDDBClient(), "refdb-backups", "s3://test-bucket/test/")

	_, err := c.Latest(ctx)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	v, err := c.Commit(ctx, "backup-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Number)

	latest, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backup-1", latest.Name)
	assert.Equal(t, uint64(1), latest.Number)
}

func TestCatalog_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(newMockDDBClient(), "refdb-backups", "s3://test-bucket/test/")

	for i := 1; i <= 3; i++ {
		_, err := c.Commit(ctx, fmt.Sprintf("backup-%d", i))
		require.NoError(t, err)
	}

	latest, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backup-3", latest.Name)

	versions, err := c.Versions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "backup-1", versions[0].Name)
	assert.Equal(t, uint64(3), versions[2].Number)
}

func TestCatalog_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(newMockDDBClient(), "refdb-backups", "s3://test-bucket/test/")

	_, err := c.Commit(ctx, "backup-1")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := c.Commit(ctx, fmt.Sprintf("backup-%d", id+2))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, blobstore.ErrConcurrentModification):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Greater(t, successes, 0, "at least one writer should succeed")

	versions, err := c.Versions(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, 1+successes)
}

func TestCatalog_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	c1 := NewCatalog(ddb, "refdb-backups", "s3://bucket-a/path/")
	c2 := NewCatalog(ddb, "refdb-backups", "s3://bucket-b/path/")

	_, err := c1.Commit(ctx, "A")
	require.NoError(t, err)
	_, err = c2.Commit(ctx, "B")
	require.NoError(t, err)

	v1, err := c1.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", v1.Name)

	v2, err := c2.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", v2.Name)
}
