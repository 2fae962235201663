package peer

import (
	"context"
	"errors"
	"time"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	// PeerRepo is the relay's directory of keys that have authenticated.
	PeerRepo struct {
		collection *mongo.Collection
		now        func() time.Time
	}
)

func NewPeerRepo(db *mongo.Database) *PeerRepo {
	return &PeerRepo{
		collection: db.Collection("peers"),
		now:        time.Now,
	}
}

// Touch records one authenticated connection for pk, creating the record on
// first sight.
func (r *PeerRepo) Touch(ctx context.Context, pk pki.PublicKey) error {
	now := r.now().UTC()
	filter := bson.M{"_id": pk.String()}
	update := bson.M{
		"$setOnInsert": bson.M{"first_seen": now},
		"$set":         bson.M{"last_seen": now},
		"$inc":         bson.M{"connections": 1},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// Get returns nil, nil when pk has never authenticated.
func (r *PeerRepo) Get(ctx context.Context, pk pki.PublicKey) (*model.PeerRecord, error) {
	filter := bson.M{
		"_id": pk.String(),
	}

	var rec model.PeerRecord
	err := r.collection.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &rec, nil
}
