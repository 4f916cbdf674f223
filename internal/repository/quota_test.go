package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/domain"
)

func quotaItem(remaining string, expiresAt int64) map[string]types.AttributeValue {
	item := key(quotaPK("a@example.com"), skQuotaDaily)
	item["remaining"] = &types.AttributeValueMemberN{Value: remaining}
	item["expiresAt"] = numAttr(expiresAt)
	return item
}

func conditionFailed(item map[string]types.AttributeValue) error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed"), Item: item}
}

func TestCheckAndConsume_OK(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	state, err := c.CheckAndConsume(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.QuotaOK, state)

	in := db.lastUpdate
	require.Equal(t, "QUOTA#a@example.com", sAttr(in.Key, "PK"))
	require.Equal(t, "SET remaining = remaining - :one", *in.UpdateExpression)
	require.Equal(t, "attribute_exists(PK) AND expiresAt > :now AND remaining >= :one", *in.ConditionExpression)
	require.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)
	require.Equal(t, "1772013600", nAttr(in.ExpressionAttributeValues, ":now"))
}

func TestCheckAndConsume_Rejections(t *testing.T) {
	live := testNow.Add(time.Hour).Unix()
	cases := []struct {
		name string
		item map[string]types.AttributeValue
		want domain.QuotaState
	}{
		{"absent", nil, domain.QuotaNotExist},
		{"expired", quotaItem("4", testNow.Unix()), domain.QuotaNotExist},
		{"exhausted", quotaItem("0", live), domain.QuotaExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := mustNewClient(t, &fakeDynamo{updateErr: conditionFailed(tc.item)})
			state, err := c.CheckAndConsume(context.Background(), "a@example.com")
			require.NoError(t, err)
			require.Equal(t, tc.want, state)
		})
	}
}

func TestCheckAndConsume_MalformedCounterFailsLoudly(t *testing.T) {
	item := quotaItem("0", testNow.Add(time.Hour).Unix())
	item["remaining"] = &types.AttributeValueMemberS{Value: "lots"}
	c := mustNewClient(t, &fakeDynamo{updateErr: conditionFailed(item)})

	_, err := c.CheckAndConsume(context.Background(), "a@example.com")
	require.ErrorContains(t, err, "malformed counter")

	item = quotaItem("3", 0)
	delete(item, "expiresAt")
	c = mustNewClient(t, &fakeDynamo{updateErr: conditionFailed(item)})
	_, err = c.CheckAndConsume(context.Background(), "a@example.com")
	require.ErrorContains(t, err, "malformed counter")
}

func TestCheckAndConsume_StoreUnavailable(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{updateErr: errors.New("RequestTimeout")})
	_, err := c.CheckAndConsume(context.Background(), "a@example.com")
	require.ErrorContains(t, err, "CheckAndConsume update")
}

func TestInitialize_WritesWindow(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.Initialize(context.Background(), "a@example.com", 10))
	put := db.putInputs[0]
	require.Equal(t, "attribute_not_exists(PK) OR expiresAt <= :now", *put.ConditionExpression)
	require.Equal(t, "10", nAttr(put.Item, "remaining"))
	want := testNow.Add(24 * time.Hour).Unix()
	require.Equal(t, numAttr(want).Value, nAttr(put.Item, "expiresAt"))
	require.Equal(t, nAttr(put.Item, "expiresAt"), nAttr(put.Item, "ttl"))
}

func TestInitialize_LiveCounterIsKept(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErrs: []error{conditionFailed(nil)}})
	err := c.Initialize(context.Background(), "a@example.com", 10)
	require.ErrorIs(t, err, domain.ErrQuotaAlreadyInitialized)
}

func TestInitialize_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErrs: []error{errors.New("boom")}})
	err := c.Initialize(context.Background(), "a@example.com", 10)
	require.ErrorContains(t, err, "Initialize")
	require.NotErrorIs(t, err, domain.ErrQuotaAlreadyInitialized)

	err = c.Initialize(context.Background(), " ", 10)
	require.ErrorContains(t, err, "required")
}

func TestRemaining(t *testing.T) {
	live := testNow.Add(2 * time.Hour).Unix()
	c := mustNewClient(t, &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{Item: quotaItem("6", live)}}})
	n, exp, found, err := c.Remaining(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 6, n)
	require.Equal(t, time.Unix(live, 0).UTC(), exp)

	c = mustNewClient(t, &fakeDynamo{getOuts: []*dynamodb.GetItemOutput{{Item: quotaItem("6", testNow.Unix())}}})
	_, _, found, err = c.Remaining(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.False(t, found, "expired counters read as absent")

	c = mustNewClient(t, &fakeDynamo{})
	_, _, found, err = c.Remaining(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.False(t, found)
}
