package engine

import (
	"inferd/internal/gguf"
	"inferd/internal/qwen"
)

// NewBackend is the default BackendFactory: the in-process pure-Go qwen3
// forward pass. Builds tagged 'llama' additionally expose a native
// generation path at the manager level.
func NewBackend(c *gguf.Container) (Forward, error) {
	return qwen.New(c)
}
