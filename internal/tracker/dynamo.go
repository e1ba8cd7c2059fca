package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rotisserie/eris"

	"github.com/veranda-hq/applyflow/internal/config"
	"github.com/veranda-hq/applyflow/internal/model"
)

// DynamoAPI is the slice of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements Store on a DynamoDB table with a GSI on email.
type DynamoStore struct {
	client     DynamoAPI
	table      string
	emailIndex string
	ttl        time.Duration
	now        func() time.Time
}

// NewDynamo loads AWS config for the region and wraps the table.
func NewDynamo(ctx context.Context, cfg config.TrackingConfig) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, eris.Wrap(err, "tracker: load aws config")
	}
	return &DynamoStore{
		client:     dynamodb.NewFromConfig(awsCfg),
		table:      cfg.Table,
		emailIndex: cfg.EmailIndex,
		ttl:        time.Duration(cfg.TTLDays) * 24 * time.Hour,
		now:        time.Now,
	}, nil
}

func (d *DynamoStore) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func (d *DynamoStore) Apply(ctx context.Context, sessionID string, u model.TrackingUpdate) (*model.TrackingRecord, error) {
	now := d.now().UTC()

	upd := expression.
		Set(expression.Name("lastActivity"), expression.Value(now.Unix())).
		Set(expression.Name("expiresAt"), expression.Value(now.Add(d.ttl).Unix())).
		Set(expression.Name("createdAt"),
			expression.IfNotExists(expression.Name("createdAt"), expression.Value(now.Unix())))

	if u.Step != nil {
		upd = upd.Set(expression.Name("step"), expression.Value(*u.Step))
	}
	if u.Email != "" {
		upd = upd.Set(expression.Name("email"), expression.Value(u.Email))
	}
	if u.Name != "" {
		upd = upd.Set(expression.Name("name"), expression.Value(u.Name))
	}
	if u.Address != "" {
		upd = upd.Set(expression.Name("address"), expression.Value(u.Address))
	}
	if u.PropertyID != "" {
		upd = upd.Set(expression.Name("propertyId"), expression.Value(u.PropertyID))
	}
	if u.IP != "" {
		upd = upd.Set(expression.Name("ip"), expression.Value(u.IP))
	}
	if u.Geo != "" {
		upd = upd.Set(expression.Name("geo"), expression.Value(u.Geo))
	}
	if u.Signed != nil {
		upd = upd.Set(expression.Name("signed"), expression.Value(*u.Signed))
	}

	expr, err := expression.NewBuilder().WithUpdate(upd).Build()
	if err != nil {
		return nil, eris.Wrap(err, "tracker: build update expression")
	}

	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       d.key(sessionID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: apply update %s", sessionID)
	}

	var rec model.TrackingRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, eris.Wrap(err, "tracker: unmarshal record")
	}
	return &rec, nil
}

func (d *DynamoStore) Get(ctx context.Context, sessionID string) (*model.TrackingRecord, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       d.key(sessionID),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: get %s", sessionID)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var rec model.TrackingRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, eris.Wrap(err, "tracker: unmarshal record")
	}
	return &rec, nil
}

func (d *DynamoStore) GetByEmail(ctx context.Context, email string) (*model.TrackingRecord, error) {
	keyCond := expression.Key("email").Equal(expression.Value(email))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, eris.Wrap(err, "tracker: build key condition")
	}

	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.table),
		IndexName:                 aws.String(d.emailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: query email %s", email)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var rec model.TrackingRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, eris.Wrap(err, "tracker: unmarshal record")
	}
	return &rec, nil
}

func (d *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       d.key(sessionID),
	})
	return eris.Wrapf(err, "tracker: delete %s", sessionID)
}

// markFlag flips one monotonic notification flag false→true. The
// condition rejects the write when the record is gone or the flag is
// already set, which keeps concurrent scanners idempotent.
func (d *DynamoStore) markFlag(ctx context.Context, sessionID, flag string) (bool, error) {
	cond := expression.And(
		expression.AttributeExists(expression.Name("sessionId")),
		expression.Or(
			expression.AttributeNotExists(expression.Name(flag)),
			expression.Name(flag).Equal(expression.Value(false)),
		),
	)
	upd := expression.Set(expression.Name(flag), expression.Value(true))

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(upd).Build()
	if err != nil {
		return false, eris.Wrap(err, "tracker: build flag expression")
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.table),
		Key:                       d.key(sessionID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, eris.Wrapf(err, "tracker: mark %s on %s", flag, sessionID)
	}
	return true, nil
}

func (d *DynamoStore) MarkReminded(ctx context.Context, sessionID string) (bool, error) {
	return d.markFlag(ctx, sessionID, "userReminderSent")
}

func (d *DynamoStore) MarkAlerted(ctx context.Context, sessionID string) (bool, error) {
	return d.markFlag(ctx, sessionID, "salesAlertSent")
}

// ListIncomplete scans for idle, unfinished records. The table holds one
// item per in-flight application and expires via TTL, so a filtered scan
// stays small; only email lookups need the index.
func (d *DynamoStore) ListIncomplete(ctx context.Context, idleBefore time.Time, finalStep int) ([]model.TrackingRecord, error) {
	filter := expression.And(
		expression.Name("lastActivity").LessThan(expression.Value(idleBefore.Unix())),
		expression.Name("step").LessThan(expression.Value(finalStep)),
	)
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, eris.Wrap(err, "tracker: build scan filter")
	}

	var recs []model.TrackingRecord
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(d.table),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, eris.Wrap(err, "tracker: scan incomplete")
		}

		var page []model.TrackingRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, eris.Wrap(err, "tracker: unmarshal scan page")
		}
		recs = append(recs, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return recs, nil
}
