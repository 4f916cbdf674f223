package repository

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOuts    []*dynamodb.GetItemOutput
	getErr     error
	putErrs    []error
	updateErr  error
	queryOuts  []*dynamodb.QueryOutput
	queryErr   error
	getInputs  []*dynamodb.GetItemInput
	putInputs  []*dynamodb.PutItemInput
	lastUpdate *dynamodb.UpdateItemInput
	queryIns   []*dynamodb.QueryInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getInputs = append(f.getInputs, in)
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.getOuts) == 0 {
		return &dynamodb.GetItemOutput{}, nil
	}
	out := f.getOuts[0]
	f.getOuts = f.getOuts[1:]
	return out, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	if len(f.putErrs) == 0 {
		return &dynamodb.PutItemOutput{}, nil
	}
	err := f.putErrs[0]
	f.putErrs = f.putErrs[1:]
	return &dynamodb.PutItemOutput{}, err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdate = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryIns = append(f.queryIns, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryOuts) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryOuts[0]
	f.queryOuts = f.queryOuts[1:]
	return out, nil
}

var testNow = time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

func mustNewClient(t *testing.T, db *fakeDynamo, opts ...Option) *Client {
	t.Helper()
	c, err := New(db, "test-table", opts...)
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }
	return c
}

func sAttr(item map[string]types.AttributeValue, k string) string {
	return item[k].(*types.AttributeValueMemberS).Value
}

func nAttr(item map[string]types.AttributeValue, k string) string {
	return item[k].(*types.AttributeValueMemberN).Value
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestNew_DefaultQuotaOption(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	require.Equal(t, 10, c.defaultQuota)

	c = mustNewClient(t, &fakeDynamo{}, WithDefaultDailyQuota(25))
	require.Equal(t, 25, c.defaultQuota)

	c = mustNewClient(t, &fakeDynamo{}, WithDefaultDailyQuota(-1))
	require.Equal(t, 10, c.defaultQuota)
}

func TestIntAttr_Errors(t *testing.T) {
	item := map[string]types.AttributeValue{
		"s":   &types.AttributeValueMemberS{Value: "1"},
		"bad": &types.AttributeValueMemberN{Value: "x"},
	}
	_, err := intAttr(item, "missing")
	require.ErrorContains(t, err, "missing attribute")
	_, err = intAttr(item, "s")
	require.ErrorContains(t, err, "not a number")
	_, err = intAttr(item, "bad")
	require.ErrorContains(t, err, "parse attribute")
}
