package kv

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend implements Backend on a single MongoDB collection, one
// document per key with `_id` as the key. The CAS token is a nanosecond
// timestamp written alongside the value; conditioned writes are filtered
// updates on {_id, cas}, which Mongo applies atomically per document.
type MongoBackend struct {
	col *mongo.Collection
}

type mongoRecord struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value,omitempty"`
	CAS   int64  `bson:"cas"`
	N     int64  `bson:"n,omitempty"`
}

func NewMongoBackend(col *mongo.Collection) *MongoBackend {
	return &MongoBackend{col: col}
}

// ConnectMongo opens a client connection and pings it. Caller should call
// client.Disconnect(ctx) on shutdown.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func newToken() int64 { return time.Now().UnixNano() }

func (b *MongoBackend) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	var rec mongoRecord
	err := b.col.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return rec.Value, uint64(rec.CAS), nil
}

func (b *MongoBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.col.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *MongoBackend) Write(ctx context.Context, mode WriteMode, key string, value []byte) (uint64, error) {
	cas := newToken()
	switch mode {
	case Add:
		_, err := b.col.InsertOne(ctx, mongoRecord{Key: key, Value: value, CAS: cas})
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrKeyExists
		}
		if err != nil {
			return 0, err
		}
		return uint64(cas), nil
	case Replace:
		res, err := b.col.UpdateOne(ctx, bson.M{"_id": key},
			bson.M{"$set": bson.M{"value": value, "cas": cas}})
		if err != nil {
			return 0, err
		}
		if res.MatchedCount == 0 {
			return 0, ErrNotFound
		}
		return uint64(cas), nil
	default:
		_, err := b.col.UpdateOne(ctx, bson.M{"_id": key},
			bson.M{"$set": bson.M{"value": value, "cas": cas}},
			options.Update().SetUpsert(true))
		if err != nil {
			return 0, err
		}
		return uint64(cas), nil
	}
}

func (b *MongoBackend) WriteCAS(ctx context.Context, key string, value []byte, cas uint64) (uint64, error) {
	next := newToken()
	res, err := b.col.UpdateOne(ctx, bson.M{"_id": key, "cas": int64(cas)},
		bson.M{"$set": bson.M{"value": value, "cas": next}})
	if err != nil {
		return 0, err
	}
	if res.MatchedCount == 0 {
		return 0, ErrCASMismatch
	}
	return uint64(next), nil
}

func (b *MongoBackend) Delete(ctx context.Context, key string) error {
	_, err := b.col.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (b *MongoBackend) DeleteCAS(ctx context.Context, key string, cas uint64) error {
	res, err := b.col.DeleteOne(ctx, bson.M{"_id": key, "cas": int64(cas)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		exists, err := b.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return ErrCASMismatch
		}
	}
	return nil
}

func (b *MongoBackend) Increment(ctx context.Context, key string, delta, def int64) (int64, error) {
	return b.counter(ctx, key, delta, def)
}

func (b *MongoBackend) Decrement(ctx context.Context, key string, delta, def int64) (int64, error) {
	return b.counter(ctx, key, -delta, def)
}

func (b *MongoBackend) counter(ctx context.Context, key string, delta, def int64) (int64, error) {
	_, err := b.col.InsertOne(ctx, mongoRecord{Key: key, CAS: newToken(), N: def})
	if err == nil {
		return def, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return 0, err
	}
	var rec mongoRecord
	err = b.col.FindOneAndUpdate(ctx, bson.M{"_id": key},
		bson.M{"$inc": bson.M{"n": delta}, "$set": bson.M{"cas": newToken()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&rec)
	if err != nil {
		return 0, err
	}
	return rec.N, nil
}

func (b *MongoBackend) MultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	cur, err := b.col.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var rec mongoRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out[rec.Key] = rec.Value
	}
	return out, cur.Err()
}
