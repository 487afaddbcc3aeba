package manager

// Commit moves the sequential buffer into stable storage under key. The
// buffer is drained on success and left intact on failure.
func (m *Manager) Commit(key string) error {
	if err := m.staging.Commit(key); err != nil {
		return err
	}
	size, _ := m.store.SizeOf(key)
	m.log.Info().Str("key", key).Int("bytes", size).Msg("buffer committed to stable storage")
	return nil
}

// CommitParallel consolidates the chunk map and writes the result directly
// to stable storage, bypassing the sequential buffer. Returns bytes written.
func (m *Manager) CommitParallel(key string) (int, error) {
	n, err := m.staging.CommitParallel(key)
	if err != nil {
		return 0, err
	}
	m.log.Info().Str("key", key).Int("bytes", n).Msg("parallel chunks committed to stable storage")
	return n, nil
}

// Restore loads a stored blob back into the sequential buffer.
func (m *Manager) Restore(key string) error {
	if err := m.staging.Restore(key); err != nil {
		return err
	}
	m.log.Info().Str("key", key).Int("buffer_bytes", m.staging.BufferSize()).Msg("blob restored into buffer")
	return nil
}

// StableData returns the stored bytes for key.
func (m *Manager) StableData(key string) ([]byte, error) {
	return m.store.Load(key)
}

// StableSize returns the stored size of key.
func (m *Manager) StableSize(key string) (int, error) {
	return m.store.SizeOf(key)
}

// StorageStatus renders the human-readable staging and storage summary.
func (m *Manager) StorageStatus() string {
	return m.staging.Status()
}
