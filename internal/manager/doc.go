// Package manager coordinates the upload staging area, stable blob storage,
// and the singleton model session. It is structured into small files by
// concern:
//
//   - manager.go: core Manager type, Config, constructor, readiness.
//   - upload.go: sequential buffer and parallel chunk operations.
//   - storage.go: stable storage commits, restore, and status reporting.
//   - model.go: session setup, generation, reset, and model info.
//   - native_llama.go / native_stub.go: optional in-process go-llama.cpp
//     generation path behind the 'llama' build tag; default builds use the
//     pure-Go engine backend.
//
// All exported methods are safe for concurrent use; the Manager serializes
// model operations so only one generation runs at a time.
package manager
