package store

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"orgterm/internal/hierarchy"
)

const (
	mongoCollection  = "settings"
	hierarchyDocID   = "hierarchy"
	defaultMongoName = "orgterm"
)

type hierarchyDocument struct {
	ID   string                  `bson:"_id"`
	Tree []hierarchy.CompactNode `bson:"tree"`
}

// MongoRemote stores the hierarchy as settings/hierarchy {tree: [...]}.
type MongoRemote struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoRemote, error) {
	if database == "" {
		database = defaultMongoName
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}
	return &MongoRemote{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
	}, nil
}

func (r *MongoRemote) Load(ctx context.Context) ([]hierarchy.CompactNode, bool, error) {
	var doc hierarchyDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": hierarchyDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "load hierarchy document")
	}
	return doc.Tree, doc.Tree != nil, nil
}

func (r *MongoRemote) Save(ctx context.Context, tree []hierarchy.CompactNode) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": hierarchyDocID},
		hierarchyDocument{ID: hierarchyDocID, Tree: tree},
		options.Replace().SetUpsert(true),
	)
	return errors.Wrap(err, "save hierarchy document")
}

func (r *MongoRemote) Delete(ctx context.Context) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": hierarchyDocID})
	return errors.Wrap(err, "delete hierarchy document")
}

func (r *MongoRemote) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
