package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/refdb/blobstore"
)

// Catalog is a blobstore.Catalog on DynamoDB. Conditional writes make
// concurrent commits of the same version fail with
// blobstore.ErrConcurrentModification instead of overwriting each other.
//
// Table schema:
//   - Partition key: base_uri (string) - the backup location, e.g. "s3://bucket/prefix"
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name refdb-backups \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Catalog struct {
	client    DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ blobstore.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog for the backups below baseURI.
func NewCatalog(client DDBClient, tableName, baseURI string) *Catalog {
	return &Catalog{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Commit records name as the version after the current latest.
func (c *Catalog) Commit(ctx context.Context, name string) (blobstore.Version, error) {
	var current uint64
	latest, err := c.Latest(ctx)
	switch {
	case err == nil:
		current = latest.Number
	case !errors.Is(err, blobstore.ErrNotFound):
		return blobstore.Version{}, err
	}

	v := blobstore.Version{Number: current + 1, Name: name, Created: time.Now().UTC()}
	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: c.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(v.Number, 10)},
			"backup":   &types.AttributeValueMemberS{Value: name},
			"created":  &types.AttributeValueMemberN{Value: strconv.FormatInt(v.Created.UnixNano(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.Version{}, blobstore.ErrConcurrentModification
		}
		return blobstore.Version{}, fmt.Errorf("s3: commit catalog version: %w", err)
	}
	return v, nil
}

// Latest returns the newest committed version.
func (c *Catalog) Latest(ctx context.Context) (blobstore.Version, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: c.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return blobstore.Version{}, fmt.Errorf("s3: query catalog: %w", err)
	}
	if len(resp.Items) == 0 {
		return blobstore.Version{}, blobstore.ErrNotFound
	}
	return decodeVersion(resp.Items[0])
}

// Versions returns every version, oldest first.
func (c *Catalog) Versions(ctx context.Context) ([]blobstore.Version, error) {
	var (
		out   []blobstore.Version
		start map[string]types.AttributeValue
	)
	for {
		resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("base_uri = :uri"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uri": &types.AttributeValueMemberS{Value: c.baseURI},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: query catalog: %w", err)
		}
		for _, item := range resp.Items {
			v, err := decodeVersion(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = resp.LastEvaluatedKey
	}
}

func decodeVersion(item map[string]types.AttributeValue) (blobstore.Version, error) {
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return blobstore.Version{}, errors.New("s3: invalid version attribute in catalog")
	}
	nameAttr, ok := item["backup"].(*types.AttributeValueMemberS)
	if !ok {
		return blobstore.Version{}, errors.New("s3: invalid backup attribute in catalog")
	}
	n, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return blobstore.Version{}, fmt.Errorf("s3: parse catalog version: %w", err)
	}
	v := blobstore.Version{Number: n, Name: nameAttr.Value}
	if created, ok := item["created"].(*types.AttributeValueMemberN); ok {
		if ns, err := strconv.ParseInt(created.Value, 10, 64); err == nil {
			v.Created = time.Unix(0, ns).UTC()
		}
	}
	return v, nil
}
