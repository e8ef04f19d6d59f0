package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
)

// mongoStore is the document-db backend. One collection per record kind;
// the record name is the document id, which gives upsert its idempotence.
type mongoStore[T any] struct {
	collection *mongo.Collection
}

// document wraps a record for storage. The name doubles as the document id.
type document[T any] struct {
	Name   string `bson:"_id"`
	Record T      `bson:"record"`
}

// NewMongoStore creates a MongoDB-backed store over the given collection.
func NewMongoStore[T any](db *mongo.Database, kind string) Store[T] {
	return &mongoStore[T]{collection: db.Collection(kind + "s")}
}

func (s *mongoStore[T]) TryGet(ctx context.Context, name string) (*T, error) {
	var doc document[T]
	err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, gwerrors.NewBackendUnavailableError("mongo find failed", err)
	}
	return &doc.Record, nil
}

func (s *mongoStore[T]) Upsert(ctx context.Context, name string, record *T) error {
	doc := document[T]{Name: name, Record: *record}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": name}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return gwerrors.NewBackendUnavailableError("mongo upsert failed", err)
	}
	return nil
}

func (s *mongoStore[T]) Delete(ctx context.Context, name string) error {
	// DeleteOne with zero matches is success: absent records are already gone.
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return gwerrors.NewBackendUnavailableError("mongo delete failed", err)
	}
	return nil
}

func (s *mongoStore[T]) List(ctx context.Context) ([]*T, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, gwerrors.NewBackendUnavailableError("mongo list failed", err)
	}
	defer cursor.Close(ctx)

	out := make([]*T, 0)
	for cursor.Next(ctx) {
		var doc document[T]
		if err := cursor.Decode(&doc); err != nil {
			return nil, gwerrors.NewBackendUnavailableError("mongo decode failed", err)
		}
		record := doc.Record
		out = append(out, &record)
	}
	if err := cursor.Err(); err != nil {
		return nil, gwerrors.NewBackendUnavailableError("mongo cursor failed", err)
	}
	return out, nil
}
