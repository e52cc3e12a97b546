// Package dynamo implements store.ObjectStore on a single DynamoDB table.
// Each object is one item keyed by object_key; ConditionalCreate maps to a
// PutItem guarded by attribute_not_exists, which DynamoDB evaluates
// atomically.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tomoki/redline/internal/store"
)

// Client is the subset of *dynamodb.Client methods used by Store.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type item struct {
	ObjectKey string    `dynamodbav:"object_key"`
	Payload   []byte    `dynamodbav:"payload"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// Store implements store.ObjectStore on one DynamoDB table.
type Store struct {
	client    Client
	tableName string
}

// New creates a Store using the given table.
func New(client Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func (s *Store) ConditionalCreate(ctx context.Context, key string, payload []byte) error {
	av, err := attributevalue.MarshalMap(item{
		ObjectKey: key,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal object %q: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(object_key)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("conditional create %q: %w", key, err)
	}
	return nil
}

func (s *Store) Overwrite(ctx context.Context, key string, payload []byte) error {
	av, err := attributevalue.MarshalMap(item{
		ObjectKey: key,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal object %q: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("overwrite %q: %w", key, err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"object_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal object %q: %w", key, err)
	}
	return it.Payload, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"object_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("attribute_exists(object_key)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// List scans the table for keys under prefix. A scan is O(table) but the
// only callers are maintenance (lock cleanup) and index rebuilds.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.tableName),
			FilterExpression:     aws.String("begins_with(object_key, :prefix)"),
			ProjectionExpression: aws.String("object_key"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal keys under %q: %w", prefix, err)
		}
		for _, it := range items {
			keys = append(keys, it.ObjectKey)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return keys, nil
}
