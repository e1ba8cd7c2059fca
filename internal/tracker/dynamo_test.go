package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-hq/applyflow/internal/model"
)

// fakeDynamo captures inputs and returns canned outputs.
type fakeDynamo struct {
	DynamoAPI
	updateIn  *dynamodb.UpdateItemInput
	updateErr error
	updateOut *dynamodb.UpdateItemOutput
	queryIn   *dynamodb.QueryInput
	queryOut  *dynamodb.QueryOutput
	getOut    *dynamodb.GetItemOutput
	deleteIn  *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateOut != nil {
		return f.updateOut, nil
	}
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: "sess"},
	}}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryIn = in
	if f.queryOut != nil {
		return f.queryOut, nil
	}
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getOut != nil {
		return f.getOut, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deleteIn = in
	return &dynamodb.DeleteItemOutput{}, nil
}

func newTestDynamoStore(fake *fakeDynamo) *DynamoStore {
	return &DynamoStore{
		client:     fake,
		table:      "application-tracking",
		emailIndex: "email-index",
		ttl:        30 * 24 * time.Hour,
		now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestDynamoStore_Apply_ShapesPartialUpdate(t *testing.T) {
	t.Parallel()
	fake := &fakeDynamo{}
	st := newTestDynamoStore(fake)

	_, err := st.Apply(context.Background(), "sess", model.TrackingUpdate{
		Step:  model.IntPtr(3),
		Email: "ada@example.com",
	})
	require.NoError(t, err)

	in := fake.updateIn
	require.NotNil(t, in)
	assert.Equal(t, "application-tracking", *in.TableName)
	assert.Equal(t, types.ReturnValueAllNew, in.ReturnValues)

	expr := *in.UpdateExpression
	assert.Contains(t, expr, "if_not_exists")

	// Only the provided fields plus the bookkeeping attributes appear.
	names := make(map[string]bool, len(in.ExpressionAttributeNames))
	for _, n := range in.ExpressionAttributeNames {
		names[n] = true
	}
	assert.True(t, names["step"])
	assert.True(t, names["email"])
	assert.True(t, names["createdAt"])
	assert.True(t, names["lastActivity"])
	assert.True(t, names["expiresAt"])
	assert.False(t, names["name"], "unset fields are not touched")
	assert.False(t, names["address"])
	assert.False(t, names["userReminderSent"], "flags never move through Apply")
}

func TestDynamoStore_MarkFlag_ConditionalFailureMeansAlreadySent(t *testing.T) {
	t.Parallel()
	fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	st := newTestDynamoStore(fake)

	ok, err := st.MarkReminded(context.Background(), "sess")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NotNil(t, fake.updateIn.ConditionExpression)
	assert.Contains(t, *fake.updateIn.ConditionExpression, "attribute_exists")
}

func TestDynamoStore_MarkFlag_FirstTransition(t *testing.T) {
	t.Parallel()
	fake := &fakeDynamo{}
	st := newTestDynamoStore(fake)

	ok, err := st.MarkAlerted(context.Background(), "sess")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDynamoStore_GetByEmail_UsesIndex(t *testing.T) {
	t.Parallel()
	fake := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{
			"sessionId": &types.AttributeValueMemberS{Value: "earlier"},
			"email":     &types.AttributeValueMemberS{Value: "ada@example.com"},
		},
	}}}
	st := newTestDynamoStore(fake)

	rec, err := st.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "earlier", rec.SessionID)
	assert.Equal(t, "email-index", *fake.queryIn.IndexName)
}

func TestDynamoStore_Get_MissingIsNil(t *testing.T) {
	t.Parallel()
	st := newTestDynamoStore(&fakeDynamo{})

	rec, err := st.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
