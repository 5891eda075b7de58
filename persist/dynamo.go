package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAdapter stores atom values as single-table DynamoDB items
// keyed by "pk". It is a thin wrapper; table provisioning is the
// caller's concern.
type DynamoAdapter struct {
	client *dynamodb.Client
	table  string
}

// dynamoRecord is the stored item shape.
type dynamoRecord struct {
	PK        string `dynamodbav:"pk"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// NewDynamoAdapter creates an adapter over an existing client and table.
func NewDynamoAdapter(client *dynamodb.Client, table string) *DynamoAdapter {
	return &DynamoAdapter{client: client, table: table}
}

// NewDynamoClient builds a DynamoDB client from the default AWS
// configuration chain (environment, shared config, instance role).
func NewDynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// Read returns the stored value for key, with false when absent.
func (d *DynamoAdapter) Read(ctx context.Context, key string) (string, bool, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", false, err
	}
	if result.Item == nil {
		return "", false, nil
	}

	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return "", false, fmt.Errorf("unmarshal item: %w", err)
	}
	return rec.Value, true, nil
}

// Write stores value under key, stamping the update time.
func (d *DynamoAdapter) Write(ctx context.Context, key, value string) error {
	item, err := attributevalue.MarshalMap(dynamoRecord{
		PK:        key,
		Value:     value,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	return err
}

// Delete removes key. Deleting an absent key is not an error.
func (d *DynamoAdapter) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	return err
}

// Clear removes every item in the table, paginating through a
// keys-only scan.
func (d *DynamoAdapter) Clear(ctx context.Context) error {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:            aws.String(d.table),
		ProjectionExpression: aws.String("pk"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			pk, ok := item["pk"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := d.Delete(ctx, pk.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
