package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/relaydesk/voicegate/internal/types"
	"github.com/rs/zerolog"
)

// DynamoStore implements Store using AWS DynamoDB
type DynamoStore struct {
	client *dynamodb.Client
	config Config
	logger zerolog.Logger
}

// NewDynamoStore creates a new DynamoDB store
func NewDynamoStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*DynamoStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == ModeDynamoLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.DynamoRegion,
			BaseEndpoint: aws.String(cfg.DynamoEndpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == ModeDynamoLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.DynamoRegion).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoStore) putItem(ctx context.Context, table string, value any, what string) error {
	item, err := attributevalue.MarshalMap(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", what, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

func (s *DynamoStore) UpsertCall(ctx context.Context, call types.Call) error {
	return s.putItem(ctx, s.config.CallsTable, call, "call")
}

func (s *DynamoStore) UpsertTranscript(ctx context.Context, entry types.TranscriptEntry) error {
	return s.putItem(ctx, s.config.TranscriptsTable, entry, "transcript entry")
}

func (s *DynamoStore) UpsertAction(ctx context.Context, action types.ScheduledAction) error {
	return s.putItem(ctx, s.config.ActionsTable, action, "action")
}

func (s *DynamoStore) GetCall(ctx context.Context, callID string) (types.Call, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.CallsTable),
		Key: map[string]dbtypes.AttributeValue{
			"CallID": &dbtypes.AttributeValueMemberS{Value: callID},
		},
	})
	if err != nil {
		return types.Call{}, false, fmt.Errorf("failed to get call: %w", err)
	}
	if result.Item == nil {
		return types.Call{}, false, nil
	}

	var call types.Call
	if err := attributevalue.UnmarshalMap(result.Item, &call); err != nil {
		return types.Call{}, false, fmt.Errorf("failed to unmarshal call: %w", err)
	}
	return call, true, nil
}

func (s *DynamoStore) ListTranscript(ctx context.Context, callID string) ([]types.TranscriptEntry, error) {
	keyCond := expression.Key("CallID").Equal(expression.Value(callID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TranscriptsTable),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}

	var entries []types.TranscriptEntry
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript entries: %w", err)
	}
	return entries, nil
}

func (s *DynamoStore) SaveCalendarCredential(ctx context.Context, cred types.CalendarCredential) error {
	return s.putItem(ctx, s.config.CredentialsTable, cred, "calendar credential")
}

func (s *DynamoStore) GetCalendarCredential(ctx context.Context, namespace string) (types.CalendarCredential, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.CredentialsTable),
		Key: map[string]dbtypes.AttributeValue{
			"Namespace": &dbtypes.AttributeValueMemberS{Value: namespace},
		},
	})
	if err != nil {
		return types.CalendarCredential{}, false, fmt.Errorf("failed to get calendar credential: %w", err)
	}
	if result.Item == nil {
		return types.CalendarCredential{}, false, nil
	}

	var cred types.CalendarCredential
	if err := attributevalue.UnmarshalMap(result.Item, &cred); err != nil {
		return types.CalendarCredential{}, false, fmt.Errorf("failed to unmarshal calendar credential: %w", err)
	}
	return cred, true, nil
}

func (s *DynamoStore) Close() {}
