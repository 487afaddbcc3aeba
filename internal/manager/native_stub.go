//go:build !llama

package manager

import (
	"inferd/internal/engine"
	"inferd/pkg/types"
)

// This stub keeps default builds CGO-free. The real native path lives in
// native_llama.go behind the 'llama' build tag; without it the pure-Go
// engine backend serves generation.

// nativeBuilt reports whether this binary carries the in-process llama runtime.
const nativeBuilt = false

type nativeSession struct{}

func (m *Manager) startNativeLocked() {}

func (s *nativeSession) Generate(req types.GenerateRequest) types.GenerateResponse {
	// Unreachable: startNativeLocked never assigns a native session in this
	// build, but keep the failure explicit.
	return types.GenerateResponse{
		Error: engine.ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)").Error(),
	}
}

func (s *nativeSession) Close() error { return nil }
