package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	logx "maptap/pkg/logx"
)

// mongoStore keeps one BSON document per path. The version token is an
// integer field; conditional writes filter on it so a stale writer
// matches nothing and loses the swap.
type mongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	log     logx.Logger
	timeout time.Duration
}

type mongoDoc struct {
	Path      string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Version   int64     `bson:"version"`
	Note      string    `bson:"note,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func openMongo(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("store.uri is required for the mongo driver")
	}
	dbName := strings.TrimSpace(cfg.Database)
	if dbName == "" {
		dbName = "maptap"
	}
	collName := strings.TrimSpace(cfg.Collection)
	if collName == "" {
		collName = "documents"
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &mongoStore{
		client:  client,
		coll:    client.Database(dbName).Collection(collName),
		log:     log,
		timeout: cfg.timeout(),
	}, nil
}

func (s *mongoStore) Load(ctx context.Context, path string) ([]byte, Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("mongo load %s: %w", path, err)
	}
	return doc.Data, Version(strconv.FormatInt(doc.Version, 10)), nil
}

func (s *mongoStore) Save(ctx context.Context, path string, data []byte, ver Version, note string) (Version, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()

	if ver == "" {
		_, err := s.coll.InsertOne(ctx, mongoDoc{
			Path: path, Data: data, Version: 1, Note: note, UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrConflict
		}
		if err != nil {
			return "", fmt.Errorf("mongo save %s: %w", path, err)
		}
		return Version("1"), nil
	}

	want, err := strconv.ParseInt(string(ver), 10, 64)
	if err != nil {
		return "", fmt.Errorf("mongo save %s: bad version token %q", path, ver)
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": path, "version": want},
		bson.M{
			"$set": bson.M{"data": data, "note": note, "updated_at": now},
			"$inc": bson.M{"version": int64(1)},
		},
	)
	if err != nil {
		return "", fmt.Errorf("mongo save %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return "", ErrConflict
	}
	return Version(strconv.FormatInt(want+1, 10)), nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
