package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-gateway/internal/domain"
)

func quotaPK(userID string) string {
	return pkQuotaPrefix + userID
}

// CheckAndConsume decrements the user's remaining allowance in a single
// conditional update. When the condition fails the old item, returned by
// DynamoDB with the failure, tells an absent or expired counter apart from an
// exhausted one. Expired items are treated as absent because DynamoDB TTL
// deletion is lazy.
func (c *Client) CheckAndConsume(ctx context.Context, userID string) (domain.QuotaState, error) {
	now := c.now().Unix()
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(quotaPK(userID), skQuotaDaily),
		UpdateExpression:    aws.String("SET remaining = remaining - :one"),
		ConditionExpression: aws.String("attribute_exists(PK) AND expiresAt > :now AND remaining >= :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numAttr(1),
			":now": numAttr(now),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return domain.QuotaOK, nil
	}
	ccf, ok := isConditionFailed(err)
	if !ok {
		return 0, fmt.Errorf("repository: CheckAndConsume update: %w", err)
	}
	return classifyRejectedQuota(ccf.Item, now)
}

func classifyRejectedQuota(item map[string]types.AttributeValue, now int64) (domain.QuotaState, error) {
	if len(item) == 0 {
		return domain.QuotaNotExist, nil
	}
	expiresAt, err := intAttr(item, "expiresAt")
	if err != nil {
		return 0, fmt.Errorf("repository: CheckAndConsume malformed counter: %w", err)
	}
	if expiresAt <= now {
		return domain.QuotaNotExist, nil
	}
	if _, err := intAttr(item, "remaining"); err != nil {
		return 0, fmt.Errorf("repository: CheckAndConsume malformed counter: %w", err)
	}
	return domain.QuotaExceeded, nil
}

// Initialize starts a fresh daily window. A live counter is never overwritten;
// that case reports domain.ErrQuotaAlreadyInitialized.
func (c *Client) Initialize(ctx context.Context, userID string, allowance int) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("repository: Initialize: user id is required")
	}
	now := c.now()
	expiresAt := now.Add(domain.QuotaWindow).Unix()

	item := key(quotaPK(userID), skQuotaDaily)
	item["userId"] = &types.AttributeValueMemberS{Value: userID}
	item["remaining"] = numAttr(int64(allowance))
	item["expiresAt"] = numAttr(expiresAt)
	item["ttl"] = numAttr(expiresAt)

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expiresAt <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": numAttr(now.Unix()),
		},
	})
	if err == nil {
		return nil
	}
	if _, ok := isConditionFailed(err); ok {
		return domain.ErrQuotaAlreadyInitialized
	}
	return fmt.Errorf("repository: Initialize: %w", err)
}

// Remaining reports the live allowance, or found=false when none exists.
func (c *Client) Remaining(ctx context.Context, userID string) (int, time.Time, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(quotaPK(userID), skQuotaDaily),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("repository: Remaining get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, time.Time{}, false, nil
	}
	expiresAt, err := intAttr(out.Item, "expiresAt")
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("repository: Remaining decode: %w", err)
	}
	if expiresAt <= c.now().Unix() {
		return 0, time.Time{}, false, nil
	}
	remaining, err := intAttr(out.Item, "remaining")
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("repository: Remaining decode: %w", err)
	}
	return int(remaining), time.Unix(expiresAt, 0).UTC(), true, nil
}
