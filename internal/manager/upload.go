package manager

import "inferd/pkg/types"

// AppendChunk appends raw bytes to the sequential upload buffer and returns
// the new buffer size.
func (m *Manager) AppendChunk(data []byte) int {
	m.staging.AppendSequential(data)
	size := m.staging.BufferSize()
	m.log.Debug().Int("chunk_bytes", len(data)).Int("buffer_bytes", size).Msg("sequential chunk appended")
	return size
}

// BufferStatus reports the sequential buffer size.
func (m *Manager) BufferStatus() types.BufferStatus {
	return types.BufferStatus{Size: m.staging.BufferSize()}
}

// ClearBuffer discards the sequential buffer.
func (m *Manager) ClearBuffer() {
	m.staging.ClearBuffer()
	m.log.Info().Msg("upload buffer cleared")
}

// TakeBuffer drains and returns the sequential buffer contents.
func (m *Manager) TakeBuffer() []byte {
	return m.staging.TakeBuffer()
}

// PutParallelChunk stores one out-of-order chunk under id, replacing any
// previous chunk with the same id.
func (m *Manager) PutParallelChunk(id uint32, data []byte) {
	m.staging.AppendParallel(id, data)
	m.log.Debug().Uint32("chunk_id", id).Int("chunk_bytes", len(data)).Msg("parallel chunk stored")
}

// ParallelStatus reports the chunk map. When expected is non-nil the response
// also says whether ids form the dense range [0, expected).
func (m *Manager) ParallelStatus(expected *uint32) types.ParallelStatus {
	status := types.ParallelStatus{
		Count:      m.staging.ChunkCount(),
		Ids:        m.staging.ChunkIDs(),
		TotalBytes: m.staging.ParallelSize(),
	}
	if expected != nil {
		complete := m.staging.IsComplete(*expected)
		status.Complete = &complete
	}
	return status
}

// RemoveChunk deletes one chunk and reports whether it existed.
func (m *Manager) RemoveChunk(id uint32) bool {
	removed := m.staging.RemoveChunk(id)
	m.log.Debug().Uint32("chunk_id", id).Bool("removed", removed).Msg("parallel chunk removal")
	return removed
}

// ClearParallel discards every staged chunk.
func (m *Manager) ClearParallel() {
	m.staging.ClearParallel()
	m.log.Info().Msg("parallel chunks cleared")
}

// Consolidate merges staged chunks into the sequential buffer in ascending
// id order and returns the chunk and byte counts, or EmptyUpload when
// nothing is staged.
func (m *Manager) Consolidate() (chunks, bytes int, err error) {
	chunks, bytes, err = m.staging.Consolidate()
	if err != nil {
		return 0, 0, err
	}
	m.log.Info().Int("chunks", chunks).Int("buffer_bytes", bytes).Msg("parallel chunks consolidated")
	return chunks, bytes, nil
}
