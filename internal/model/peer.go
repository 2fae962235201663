package model

import "time"

type (
	// PeerRecord is what the relay remembers about a key that authenticated
	// with it.
	PeerRecord struct {
		PublicKey   string    `bson:"_id" json:"public_key"`
		FirstSeen   time.Time `bson:"first_seen" json:"first_seen"`
		LastSeen    time.Time `bson:"last_seen" json:"last_seen"`
		Connections int64     `bson:"connections" json:"connections"`
	}

	PeerStatus struct {
		PeerRecord
		Online bool `json:"online"`
	}
)
