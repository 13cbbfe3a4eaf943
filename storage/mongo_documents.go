package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDocuments persists each document as one entry of the documents
// collection, keyed by name.
type MongoDocuments struct {
	client    *mongo.Client
	documents *mongo.Collection
}

var _ DocumentStore = (*MongoDocuments)(nil)

type mongoDocument struct {
	Name      string    `bson:"_id"`
	Body      string    `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDocuments connects and pings the server before returning.
func NewMongoDocuments(ctx context.Context, uri, database string) (*MongoDocuments, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, mongoopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return &MongoDocuments{
		client:    client,
		documents: client.Database(database).Collection("documents"),
	}, nil
}

func (m *MongoDocuments) Load(ctx context.Context, name string) ([]byte, error) {
	var doc mongoDocument
	err := m.documents.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: load %s: %w", name, err)
	}
	return []byte(doc.Body), nil
}

func (m *MongoDocuments) Save(ctx context.Context, name string, body []byte) error {
	doc := mongoDocument{Name: name, Body: string(body), UpdatedAt: time.Now().UTC()}
	_, err := m.documents.ReplaceOne(ctx, bson.M{"_id": name}, doc, mongoopts.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: save %s: %w", name, err)
	}
	return nil
}

func (m *MongoDocuments) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
