package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/EliorMigdal/kaplat-ex7/domain"
)

const (
	mongoDatabase   = "todos"
	mongoCollection = "todos"
)

// todoDocument is the document shape of a todo.
type todoDocument struct {
	RawID   int64  `bson:"rawid"`
	Title   string `bson:"title"`
	Content string `bson:"content"`
	DueDate int64  `bson:"duedate"`
	State   string `bson:"state"`
}

func (d todoDocument) todo() domain.Todo {
	return domain.Todo{
		ID:      d.RawID,
		Title:   d.Title,
		Content: d.Content,
		Status:  domain.Status(d.State),
		DueDate: d.DueDate,
	}
}

// MongoStore persists todos in the todos collection of the todos database.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to the document store at uri.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(mongoDatabase).Collection(mongoCollection),
	}, nil
}

// NewMongoStoreFromCollection wraps an existing collection handle.
func NewMongoStoreFromCollection(coll *mongo.Collection) *MongoStore {
	return &MongoStore{client: coll.Database().Client(), coll: coll}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func stateFilter(filter domain.StatusFilter) bson.D {
	if st, ok := filter.Status(); ok {
		return bson.D{{Key: "state", Value: string(st)}}
	}
	return bson.D{}
}

func (s *MongoStore) Count(ctx context.Context, filter domain.StatusFilter) (int, error) {
	n, err := s.coll.CountDocuments(ctx, stateFilter(filter))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *MongoStore) List(ctx context.Context, filter domain.StatusFilter, key domain.SortKey) ([]domain.Todo, error) {
	opts := options.Find().SetSort(bson.D{{Key: key.Field(), Value: 1}})
	cur, err := s.coll.Find(ctx, stateFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	var docs []todoDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	todos := make([]domain.Todo, 0, len(docs))
	for _, d := range docs {
		todos = append(todos, d.todo())
	}
	return todos, nil
}

func (s *MongoStore) TitleExists(ctx context.Context, title string) (bool, error) {
	err := s.coll.FindOne(ctx, bson.D{{Key: "title", Value: title}}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) Get(ctx context.Context, id int64) (domain.Todo, error) {
	var doc todoDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "rawid", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Todo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Todo{}, err
	}
	return doc.todo(), nil
}

func (s *MongoStore) Status(ctx context.Context, id int64) (domain.Status, error) {
	var doc todoDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "rawid", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.Status(doc.State), nil
}

func (s *MongoStore) Insert(ctx context.Context, t domain.Todo) error {
	_, err := s.coll.InsertOne(ctx, todoDocument{
		RawID:   t.ID,
		Title:   t.Title,
		Content: t.Content,
		DueDate: t.DueDate,
		State:   string(t.Status),
	})
	return err
}

func (s *MongoStore) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "rawid", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: string(status)}}}},
	)
	return err
}

func (s *MongoStore) Delete(ctx context.Context, id int64) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "rawid", Value: id}})
	return err
}
