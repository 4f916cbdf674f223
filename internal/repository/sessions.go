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

func sessionPK(sessionID string) string {
	return pkSessionPrefix + sessionID
}

// FindSession reads a session by id. Unknown ids report found=false.
func (c *Client) FindSession(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, false, nil
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(sessionPK(sessionID), skSessionMeta),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: FindSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: FindSession decode: %w", err)
	}
	return s, true, nil
}

// SaveSession replaces the full session record.
func (c *Client) SaveSession(ctx context.Context, s domain.Session) error {
	if strings.TrimSpace(s.SessionID) == "" || strings.TrimSpace(s.PartitionKey) == "" {
		return errors.New("repository: SaveSession: session id and partition key are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(s, c.now()),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveSession: %w", err)
	}
	return nil
}

// ListSessions returns up to limit sessions in a date bucket.
func (c *Client) ListSessions(ctx context.Context, partitionKey string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		sessions []domain.Session
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			IndexName:              aws.String(partitionKeyIndex),
			KeyConditionExpression: aws.String("partitionKey = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: partitionKey},
			},
			Limit:             aws.Int32(int32(limit - len(sessions))),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListSessions query: %w", err)
		}
		for _, item := range out.Items {
			s, err := itemToSession(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListSessions decode: %w", err)
			}
			sessions = append(sessions, s)
		}
		if len(out.LastEvaluatedKey) == 0 || len(sessions) >= limit {
			return sessions, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func sessionItem(s domain.Session, now time.Time) map[string]types.AttributeValue {
	turns := make([]types.AttributeValue, 0, len(s.Turns))
	for _, t := range s.Turns {
		turns = append(turns, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":    &types.AttributeValueMemberS{Value: string(t.Role)},
			"content": &types.AttributeValueMemberS{Value: t.Content},
		}})
	}
	item := key(sessionPK(s.SessionID), skSessionMeta)
	item["sessionId"] = &types.AttributeValueMemberS{Value: s.SessionID}
	item["partitionKey"] = &types.AttributeValueMemberS{Value: s.PartitionKey}
	item["turns"] = &types.AttributeValueMemberL{Value: turns}
	item["promo"] = &types.AttributeValueMemberS{Value: s.PendingPrompt}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)}
	return item
}

func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	id, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Session{}, err
	}
	pk, err := strAttr(item, "partitionKey")
	if err != nil {
		return domain.Session{}, err
	}
	promo, _ := strAttr(item, "promo") // allow empty

	s := domain.Session{SessionID: id, PartitionKey: pk, PendingPrompt: promo, Turns: []domain.Turn{}}
	raw, ok := item["turns"]
	if !ok {
		return s, nil
	}
	list, ok := raw.(*types.AttributeValueMemberL)
	if !ok {
		return domain.Session{}, errors.New("repository: attribute \"turns\" is not a list")
	}
	for i, v := range list.Value {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return domain.Session{}, fmt.Errorf("repository: turn %d is not a map", i)
		}
		roleStr, err := strAttr(m.Value, "role")
		if err != nil {
			return domain.Session{}, fmt.Errorf("repository: turn %d: %w", i, err)
		}
		role, err := domain.ParseRole(roleStr)
		if err != nil {
			return domain.Session{}, fmt.Errorf("repository: turn %d: %w", i, err)
		}
		content, err := strAttr(m.Value, "content")
		if err != nil {
			return domain.Session{}, fmt.Errorf("repository: turn %d: %w", i, err)
		}
		s.Turns = append(s.Turns, domain.Turn{Role: role, Content: content})
	}
	return s, nil
}
