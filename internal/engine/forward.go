package engine

import "inferd/internal/gguf"

// Forward is the opaque transformer forward-pass capability. Given a token-id
// sequence and the position offset of its first token, it returns next-token
// logits for the final position only. Implementations own the positional
// key/value attention cache.
type Forward interface {
	// Forward evaluates ids starting at position offset and returns logits
	// for the last position.
	Forward(ids []int, offset int) ([]float32, error)
	// CacheLen returns the logical attention-cache length (positions evaluated).
	CacheLen() int
	// Reset clears the attention cache back to length zero.
	Reset()
	// Close releases backend resources.
	Close() error
}

// BackendFactory turns a decoded weights container into a Forward capability.
// The default factory is the pure-Go qwen forward pass; tests inject mocks.
type BackendFactory func(c *gguf.Container) (Forward, error)
