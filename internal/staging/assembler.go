// Package staging accumulates uploaded weight fragments and consolidates them
// into the durable blob store. Two paths exist: a single sequential buffer for
// small artifacts and an id-keyed chunk map for large out-of-order uploads.
package staging

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"inferd/internal/store"
)

// Assembler owns the sequential upload buffer and the parallel chunk map.
// All mutating operations take the lock so a consolidate can never interleave
// with an append.
type Assembler struct {
	mu     sync.Mutex
	buffer []byte
	chunks map[uint32][]byte
	stable store.BlobStore
}

// New returns an Assembler committing into stable.
func New(stable store.BlobStore) *Assembler {
	return &Assembler{
		chunks: make(map[uint32][]byte),
		stable: stable,
	}
}

// AppendSequential appends chunk to the single upload buffer in arrival order.
func (a *Assembler) AppendSequential(chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, chunk...)
}

// BufferSize returns the current sequential buffer length.
func (a *Assembler) BufferSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

// ClearBuffer discards the sequential buffer.
func (a *Assembler) ClearBuffer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = nil
}

// AppendParallel inserts or overwrites the chunk stored under id. Re-sending
// an id replaces its prior content, which makes client retries idempotent.
func (a *Assembler) AppendParallel(id uint32, chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	a.chunks[id] = cp
}

// ChunkCount returns the number of parallel chunks currently held.
func (a *Assembler) ChunkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

// ChunkIDs returns the present chunk ids in ascending order.
func (a *Assembler) ChunkIDs() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedIDsLocked()
}

// ParallelSize returns the total byte count across all parallel chunks.
func (a *Assembler) ParallelSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, c := range a.chunks {
		total += len(c)
	}
	return total
}

// IsComplete reports whether the chunk map holds exactly the dense id range
// [0, expected). Extra ids, missing ids, or a wrong count all return false.
func (a *Assembler) IsComplete(expected uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint32(len(a.chunks)) != expected {
		return false
	}
	for i := uint32(0); i < expected; i++ {
		if _, ok := a.chunks[i]; !ok {
			return false
		}
	}
	return true
}

// RemoveChunk deletes one parallel chunk, reporting whether it existed.
// Used to discard a corrupted fragment before resubmission.
func (a *Assembler) RemoveChunk(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.chunks[id]
	delete(a.chunks, id)
	return ok
}

// ClearParallel discards all parallel chunks.
func (a *Assembler) ClearParallel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = make(map[uint32][]byte)
}

// Consolidate concatenates the parallel chunks in ascending id order,
// replaces the sequential buffer wholesale, clears the chunk map, and returns
// the chunk and byte counts. Fails with ErrEmptyUpload when no chunks are
// held, leaving the buffer untouched.
func (a *Assembler) Consolidate() (chunks, bytes int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chunks = len(a.chunks)
	data, err := a.drainChunksLocked()
	if err != nil {
		return 0, 0, err
	}
	a.buffer = data
	return chunks, len(data), nil
}

// Commit moves the sequential buffer contents into stable storage under key,
// draining the buffer. Fails with ErrEmptyBuffer when nothing is buffered.
func (a *Assembler) Commit(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffer) == 0 {
		return ErrEmptyBuffer(key)
	}
	data := a.buffer
	a.buffer = nil
	if err := a.stable.Save(key, data); err != nil {
		// leave the buffer intact so the caller can retry
		a.buffer = data
		return err
	}
	return nil
}

// CommitParallel consolidates the chunk map and saves the result directly
// under key, skipping the sequential buffer. Returns the byte count.
func (a *Assembler) CommitParallel(key string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, err := a.drainChunksLocked()
	if err != nil {
		return 0, err
	}
	if err := a.stable.Save(key, data); err != nil {
		// restore nothing: chunk contents are gone, but the caller still has
		// them client-side; surface the storage error as-is
		return 0, err
	}
	return len(data), nil
}

// Restore loads the blob stored under key back into the sequential buffer.
func (a *Assembler) Restore(key string) error {
	data, err := a.stable.Load(key)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = data
	return nil
}

// TakeBuffer drains and returns the sequential buffer contents.
func (a *Assembler) TakeBuffer() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	data := a.buffer
	a.buffer = nil
	return data
}

// Status renders a human-readable summary of both upload paths and the
// stable store.
func (a *Assembler) Status() string {
	a.mu.Lock()
	bufLen := len(a.buffer)
	count := len(a.chunks)
	total := 0
	for _, c := range a.chunks {
		total += len(c)
	}
	ids := a.sortedIDsLocked()
	a.mu.Unlock()

	var stable []string
	if keys, err := a.stable.Keys(); err == nil {
		for _, k := range keys {
			if n, err := a.stable.SizeOf(k); err == nil {
				stable = append(stable, fmt.Sprintf("%s: %d bytes", k, n))
			}
		}
	}
	return fmt.Sprintf(
		"Buffer: %d bytes\nParallel chunks: %d chunks, %d bytes total\nChunk IDs: %v\nStable storage: [%s]",
		bufLen, count, total, ids, strings.Join(stable, ", "),
	)
}

// drainChunksLocked snapshots the chunk map in ascending id order and clears
// it. Caller holds the lock.
func (a *Assembler) drainChunksLocked() ([]byte, error) {
	if len(a.chunks) == 0 {
		return nil, ErrEmptyUpload()
	}
	ids := a.sortedIDsLocked()
	total := 0
	for _, id := range ids {
		total += len(a.chunks[id])
	}
	data := make([]byte, 0, total)
	for _, id := range ids {
		data = append(data, a.chunks[id]...)
	}
	a.chunks = make(map[uint32][]byte)
	return data, nil
}

func (a *Assembler) sortedIDsLocked() []uint32 {
	ids := make([]uint32, 0, len(a.chunks))
	for id := range a.chunks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
