package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "idempotency_keys"

// Record is a stored Idempotency-Key with the response it produced
type Record struct {
	ID                 string            `bson:"_id"`
	Key                string            `bson:"key"`
	ServiceID          string            `bson:"serviceId"`
	RequestPath        string            `bson:"requestPath"`
	RequestMethod      string            `bson:"requestMethod"`
	RequestFingerprint string            `bson:"requestFingerprint"`
	Token              string            `bson:"token"`
	LockedAt           *time.Time        `bson:"lockedAt,omitempty"`
	ResponseCode       int               `bson:"responseCode,omitempty"`
	ResponseBody       []byte            `bson:"responseBody,omitempty"`
	ResponseHeaders    map[string]string `bson:"responseHeaders,omitempty"`
	CreatedAt          time.Time         `bson:"createdAt"`
	CompletedAt        *time.Time        `bson:"completedAt,omitempty"`
	ExpiresAt          time.Time         `bson:"expiresAt"`
}

// IsCompleted returns true once a response has been stored
func (r *Record) IsCompleted() bool {
	return r.CompletedAt != nil
}

// IsLocked returns true while a request holds the key
func (r *Record) IsLocked() bool {
	return r.LockedAt != nil && r.CompletedAt == nil
}

// KeyRepository stores idempotency records
type KeyRepository interface {
	// AcquireLock inserts rec or loads the existing record for its ID. acquired
	// is true when the caller now holds the key: a fresh insert, or an
	// uncompleted record that was unlocked or locked before staleBefore.
	AcquireLock(ctx context.Context, rec *Record, staleBefore time.Time) (stored *Record, acquired bool, err error)
	ReleaseLock(ctx context.Context, id string) error
	StoreResponse(ctx context.Context, id string, code int, body []byte, headers map[string]string) error
}

// MongoKeyRepository implements KeyRepository using MongoDB
type MongoKeyRepository struct {
	collection *mongo.Collection
}

// NewMongoKeyRepository creates a new MongoDB-backed key repository
func NewMongoKeyRepository(db *mongo.Database) *MongoKeyRepository {
	return &MongoKeyRepository{collection: db.Collection(collectionName)}
}

// RecordID scopes a client key to a service
func RecordID(serviceID, key string) string {
	return serviceID + ":" + key
}

// AcquireLock upserts the record, then tries to take over an idle lock
func (r *MongoKeyRepository) AcquireLock(ctx context.Context, rec *Record, staleBefore time.Time) (*Record, bool, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": rec.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"key":                rec.Key,
			"serviceId":          rec.ServiceID,
			"requestPath":        rec.RequestPath,
			"requestMethod":      rec.RequestMethod,
			"requestFingerprint": rec.RequestFingerprint,
			"token":              rec.Token,
			"lockedAt":           now,
			"createdAt":          rec.CreatedAt,
			"expiresAt":          rec.ExpiresAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored Record
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race, read the winner
		err = r.collection.FindOne(ctx, filter).Decode(&stored)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire idempotency key: %w", err)
	}
	if stored.Token == rec.Token {
		return &stored, true, nil
	}
	if stored.IsCompleted() {
		return &stored, false, nil
	}

	takeover := bson.M{
		"_id":         rec.ID,
		"completedAt": bson.M{"$exists": false},
		"$or": bson.A{
			bson.M{"lockedAt": bson.M{"$exists": false}},
			bson.M{"lockedAt": bson.M{"$lt": staleBefore}},
		},
	}
	result, err := r.collection.UpdateOne(ctx, takeover, bson.M{"$set": bson.M{"lockedAt": now}})
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock idempotency key: %w", err)
	}
	if result.ModifiedCount == 1 {
		stored.LockedAt = &now
		return &stored, true, nil
	}
	return &stored, false, nil
}

// ReleaseLock clears lockedAt so a retry can run the request again
func (r *MongoKeyRepository) ReleaseLock(ctx context.Context, id string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{"lockedAt": ""}})
	return err
}

// StoreResponse records the response and completes the key
func (r *MongoKeyRepository) StoreResponse(ctx context.Context, id string, code int, body []byte, headers map[string]string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"responseCode":    code,
			"responseBody":    body,
			"responseHeaders": headers,
			"completedAt":     time.Now().UTC(),
		},
		"$unset": bson.M{"lockedAt": ""},
	})
	return err
}

// EnsureIndexes creates the expiry index
func (r *MongoKeyRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetName("idx_expiresAt_ttl").SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create idempotency indexes: %w", err)
	}
	return nil
}

// ErrKeyInvalid is returned for keys outside [A-Za-z0-9_-]{1,255}
var ErrKeyInvalid = errors.New("idempotency key must be 1-255 characters of letters, digits, '-' or '_'")
