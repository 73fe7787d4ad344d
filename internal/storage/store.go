package storage

import "context"

// Keys of the two logical collections.
const (
	UsersKey   = "users"
	SessionKey = "session"
)

// RecordStore is a persisted key-value space. Writes are atomic per call;
// there is no locking across calls, so concurrent writers race and the last
// write wins.
type RecordStore interface {
	// Load returns the raw value for key and whether it was present.
	Load(ctx context.Context, key string) (string, bool, error)
	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the underlying connection.
	Close() error
}
