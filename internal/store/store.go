// Package store provides the durable byte-blob store backing uploaded model
// artifacts. Keys map to opaque byte blobs; last write wins.
package store

// BlobStore is a durable mapping from string keys to byte blobs. Save is an
// unconditional upsert; Load fails with a key-not-found error for absent keys.
// Implementations must survive process restarts (the in-memory variant exists
// for tests only).
type BlobStore interface {
	// Save upserts the blob under key.
	Save(key string, data []byte) error
	// Load returns the blob stored under key, or ErrKeyNotFound.
	Load(key string) ([]byte, error)
	// SizeOf returns the stored blob size in bytes, or ErrKeyNotFound.
	SizeOf(key string) (int, error)
	// Keys returns all stored keys in ascending order.
	Keys() ([]string, error)
	// Close releases underlying resources.
	Close() error
}

// keyNotFoundError signals an absent blob key for 404 mapping.
type keyNotFoundError struct{ key string }

func (e keyNotFoundError) Error() string { return "no data found in stable storage for key: " + e.key }

// ErrKeyNotFound constructs a keyNotFoundError for key.
func ErrKeyNotFound(key string) error { return keyNotFoundError{key: key} }

// IsKeyNotFound reports whether err indicates a missing blob key.
func IsKeyNotFound(err error) bool {
	_, ok := err.(keyNotFoundError)
	return ok
}
