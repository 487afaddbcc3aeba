package manager

import (
	"inferd/internal/engine"
	"inferd/pkg/types"
)

// SetupModel constructs a fresh session from the committed weights and
// tokenizer blobs. An existing session is replaced only after the new one
// loads; a failed setup leaves the old session serving.
func (m *Manager) SetupModel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := engine.Load(m.store, engine.LoadOptions{
		Backend:       m.cfg.Backend,
		Logger:        m.log,
		Meter:         m.cfg.Meter,
		BudgetCeiling: m.cfg.BudgetCeiling,
		MaxTokens:     m.cfg.MaxTokens,
	})
	if err != nil {
		return err
	}

	if m.session != nil {
		if cerr := m.session.Close(); cerr != nil {
			m.log.Warn().Err(cerr).Msg("closing previous session")
		}
	}
	m.session = session

	if nativeBuilt {
		m.startNativeLocked()
	}
	return nil
}

// Generate runs one bounded generation call. Hard failures (no session, bad
// prompt) surface as success=false in the response, matching the original
// service's always-200 response shape.
func (m *Manager) Generate(req types.GenerateRequest) types.GenerateResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return types.GenerateResponse{Error: engine.ErrNotInitialized().Error()}
	}
	if m.native != nil {
		return m.native.Generate(req)
	}
	return m.session.Generate(req)
}

// ResetGeneration clears the session's token history and attention cache.
func (m *Manager) ResetGeneration() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return engine.ErrNotInitialized()
	}
	m.session.Reset()
	m.log.Info().Msg("generation state reset")
	return nil
}

// ModelInfo reports whether a session is loaded and its history length.
func (m *Manager) ModelInfo() types.ModelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return types.ModelInfo{}
	}
	return types.ModelInfo{
		Loaded:        true,
		CurrentTokens: m.session.HistoryLen(),
	}
}
