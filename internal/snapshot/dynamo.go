package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type DynamoOptions struct {
	Region   string
	ID       string
	Secret   string
	Token    string
	Endpoint string
	Table    string
}

// dynamoItem is one snapshot row. The table's TTL attribute must be set to
// expiresAt; DynamoDB removes expired rows lazily so Get also checks it.
type dynamoItem struct {
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

type DynamoStore struct {
	svc   *dynamodb.Client
	table string
	now   func() time.Time
}

func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}

	if opts.ID != "" && opts.Secret != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(opts.ID, opts.Secret, opts.Token)),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}

	return &DynamoStore{
		svc:   dynamodb.NewFromConfig(cfg, clientOpts...),
		table: opts.Table,
		now:   time.Now,
	}, nil
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (string, error) {
	res, err := s.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get item %s: %w", s.table, err)
	}
	if res.Item == nil {
		return "", ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(res.Item, &item); err != nil {
		return "", fmt.Errorf("unmarshal item: %w", err)
	}
	if item.ExpiresAt > 0 && s.now().Unix() >= item.ExpiresAt {
		return "", ErrNotFound
	}
	return item.Value, nil
}

func (s *DynamoStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	item := dynamoItem{Key: key, Value: value}
	if ttl > 0 {
		item.ExpiresAt = s.now().Add(ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item %s: %w", s.table, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.svc.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttr(key),
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", s.table, err)
	}
	return nil
}
