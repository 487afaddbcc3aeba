//go:build llama

package manager

import (
	"os"

	llama "github.com/go-skynet/go-llama.cpp"

	"inferd/pkg/types"
)

// nativeBuilt reports whether this binary carries the in-process llama runtime.
const nativeBuilt = true

// nativeSession drives generation through go-llama.cpp. The committed
// weights blob is staged to a temporary GGUF file because the bindings load
// from a path, not from memory.
type nativeSession struct {
	model   *llama.LLama
	path    string
	threads int
}

// startNativeLocked stages the weights and loads the native model. Failure
// is non-fatal: the pure-Go engine backend keeps serving generation.
func (m *Manager) startNativeLocked() {
	data, err := m.store.Load(types.KeyModelWeights)
	if err != nil {
		m.log.Warn().Err(err).Msg("native path: loading weights blob")
		return
	}
	f, err := os.CreateTemp("", "inferd-weights-*.gguf")
	if err != nil {
		m.log.Warn().Err(err).Msg("native path: staging weights file")
		return
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		m.log.Warn().Err(err).Msg("native path: writing weights file")
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		m.log.Warn().Err(err).Msg("native path: closing weights file")
		return
	}

	ctxSize := m.cfg.NativeContext
	if ctxSize <= 0 {
		ctxSize = 4096
	}
	model, err := llama.New(path, llama.SetContext(ctxSize))
	if err != nil {
		os.Remove(path)
		m.log.Warn().Err(err).Msg("native path: loading llama model, falling back to pure-Go backend")
		return
	}

	if m.native != nil {
		_ = m.native.Close()
	}
	m.native = &nativeSession{model: model, path: path, threads: m.cfg.NativeThreads}
	m.log.Info().Int("context", ctxSize).Msg("native llama runtime loaded")
}

func (s *nativeSession) Generate(req types.GenerateRequest) types.GenerateResponse {
	cfg := types.DefaultGenerationConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 50
	}

	tokens := 0
	s.model.SetTokenCallback(func(string) bool {
		tokens++
		return true
	})

	opts := []llama.PredictOption{
		llama.SetTokens(maxTokens),
		llama.SetTemperature(float32(cfg.Temperature)),
		llama.SetTopP(float32(cfg.TopP)),
		llama.SetPenalty(cfg.RepeatPenalty),
		llama.SetSeed(int(cfg.Seed)),
	}
	if s.threads > 0 {
		opts = append(opts, llama.SetThreads(s.threads))
	}

	text, err := s.model.Predict(req.Prompt, opts...)
	if err != nil {
		return types.GenerateResponse{Error: err.Error()}
	}
	return types.GenerateResponse{
		Text:            text,
		TokensGenerated: tokens,
		Success:         true,
	}
}

func (s *nativeSession) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	if s.path != "" {
		os.Remove(s.path)
		s.path = ""
	}
	return nil
}
