package inferctl

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// UploadOptions controls the chunked upload.
type UploadOptions struct {
	// ChunkSize is the per-chunk payload size in bytes.
	ChunkSize int
	// Workers is the number of concurrent uploads.
	Workers int
	// Retries is the per-chunk retry count after the first attempt.
	Retries int
}

// DefaultUploadOptions mirrors the limits the service was originally tuned
// for: just under 2 MiB per message.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{ChunkSize: 1_900_000, Workers: 4, Retries: 3}
}

// UploadFile splits path into chunks, uploads them concurrently, verifies the
// staged range is dense and commits the result under key. Missing chunks are
// re-sent once before giving up. Returns the committed byte count.
func (c *Client) UploadFile(path, key string, opts UploadOptions, progress func(done, total int)) (int, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultUploadOptions().ChunkSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	total := (len(data) + opts.ChunkSize - 1) / opts.ChunkSize
	if total == 0 {
		total = 1 // empty file still ships one empty chunk
	}

	if err := c.ClearParallel(); err != nil {
		return 0, err
	}
	if err := c.uploadChunks(data, allChunkIDs(total), opts, total, progress); err != nil {
		return 0, err
	}

	// Verify the staged range and re-send anything the server is missing.
	status, err := c.ParallelStatus(total)
	if err != nil {
		return 0, err
	}
	if status.Complete == nil || !*status.Complete {
		missing := missingChunkIDs(status.Ids, total)
		if len(missing) == 0 {
			return 0, fmt.Errorf("server reports incomplete range but no chunk is missing")
		}
		if err := c.uploadChunks(data, missing, opts, total, progress); err != nil {
			return 0, err
		}
		status, err = c.ParallelStatus(total)
		if err != nil {
			return 0, err
		}
		if status.Complete == nil || !*status.Complete {
			return 0, fmt.Errorf("upload incomplete after retry: %d/%d chunks staged", status.Count, total)
		}
	}

	return c.CommitParallel(key)
}

func (c *Client) uploadChunks(data []byte, ids []uint32, opts UploadOptions, total int, progress func(done, total int)) error {
	var (
		mu    sync.Mutex
		done  int
		first error
	)
	work := make(chan uint32)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				err := c.putChunkWithRetry(id, chunkPayload(data, int(id), opts.ChunkSize), opts.Retries)
				mu.Lock()
				if err != nil && first == nil {
					first = err
				}
				done++
				if progress != nil {
					progress(done, total)
				}
				mu.Unlock()
			}
		}()
	}
	for _, id := range ids {
		work <- id
	}
	close(work)
	wg.Wait()
	return first
}

func (c *Client) putChunkWithRetry(id uint32, payload []byte, retries int) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = c.PutChunk(id, payload); err == nil {
			return nil
		}
	}
	return fmt.Errorf("chunk %d: %w", id, err)
}

func chunkPayload(data []byte, id, chunkSize int) []byte {
	start := id * chunkSize
	if start >= len(data) {
		return nil
	}
	end := start + chunkSize
	if end > len(data) {
		end = len(data)
	}
	return data[start:end]
}

func allChunkIDs(total int) []uint32 {
	ids := make([]uint32, total)
	for i := range ids {
		ids[i] = uint32(i)
	}
	return ids
}

func missingChunkIDs(staged []uint32, total int) []uint32 {
	have := make(map[uint32]bool, len(staged))
	for _, id := range staged {
		have[id] = true
	}
	var missing []uint32
	for i := 0; i < total; i++ {
		if !have[uint32(i)] {
			missing = append(missing, uint32(i))
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
