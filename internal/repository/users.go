package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-gateway/internal/domain"
)

func userPK(email string) string {
	return pkUserPrefix + email
}

// GetOrCreate returns the user record, creating it with the default daily
// quota when absent. A concurrent creation resolves to the first writer's
// record.
func (c *Client) GetOrCreate(ctx context.Context, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, errors.New("repository: GetOrCreate: email is required")
	}

	u, found, err := c.getUser(ctx, email)
	if err != nil || found {
		return u, err
	}

	u = domain.NewUser(email, c.defaultQuota, c.now())
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                userItem(u),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return u, nil
	}
	if _, lost := isConditionFailed(err); !lost {
		return domain.User{}, fmt.Errorf("repository: GetOrCreate put: %w", err)
	}

	u, found, err = c.getUser(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, fmt.Errorf("repository: GetOrCreate: user %q vanished after conflicting create", email)
	}
	return u, nil
}

func (c *Client) getUser(ctx context.Context, email string) (domain.User, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(userPK(email), skUserProfile),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("repository: GetOrCreate get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, false, nil
	}
	u, err := itemToUser(out.Item)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("repository: GetOrCreate decode: %w", err)
	}
	return u, true, nil
}

func userItem(u domain.User) map[string]types.AttributeValue {
	item := key(userPK(u.Email), skUserProfile)
	item["email"] = &types.AttributeValueMemberS{Value: u.Email}
	item["dailyQuota"] = numAttr(int64(u.DailyQuota))
	item["createdAt"] = &types.AttributeValueMemberS{Value: u.CreatedAt.UTC().Format(time.RFC3339)}
	return item
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	email, err := strAttr(item, "email")
	if err != nil {
		return domain.User{}, err
	}
	quota, err := intAttr(item, "dailyQuota")
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{Email: email, DailyQuota: int(quota)}
	if created, err := strAttr(item, "createdAt"); err == nil {
		u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}
	return u, nil
}
