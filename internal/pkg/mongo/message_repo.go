package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageCollection = "message"

// ErrMessageNotFound 消息不存在（或不属于指定会话）
var ErrMessageNotFound = errors.New("message not found")

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, convID uint64, limit, offset int64) ([]*Message, error)
	GetMessage(ctx context.Context, convID uint64, msgID string) (*Message, error)
	LatestMessage(ctx context.Context, convID uint64) (*Message, error)
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection(messageCollection),
	}
}

// SaveMessage 将消息存入 MongoDB
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *Message) error {
	if _, err := s.col.InsertOne(ctx, msg); err != nil {
		return errors.Wrap(err, "insert message")
	}
	return nil
}

// ListMessages 按 seq 升序（旧→新）分页返回会话消息
func (s *messageRepoImpl) ListMessages(ctx context.Context, convID uint64, limit, offset int64) ([]*Message, error) {
	filter := bson.M{"conversation_id": convID}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}

	return messages, nil
}

// GetMessage 精确查询，会话不匹配视为不存在
func (s *messageRepoImpl) GetMessage(ctx context.Context, convID uint64, msgID string) (*Message, error) {
	var msg Message
	filter := bson.M{
		"_id":             msgID,
		"conversation_id": convID,
	}
	err := s.col.FindOne(ctx, filter).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "find message")
	}
	return &msg, nil
}

// LatestMessage 返回会话内 seq 最大的消息，供预览校准使用
func (s *messageRepoImpl) LatestMessage(ctx context.Context, convID uint64) (*Message, error) {
	var msg Message
	filter := bson.M{"conversation_id": convID}
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})

	err := s.col.FindOne(ctx, filter, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "find latest message")
	}
	return &msg, nil
}
