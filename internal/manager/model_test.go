package manager

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/internal/gguf"
	"inferd/internal/store"
	"inferd/pkg/types"
)

func newLoadedManager(t *testing.T) (*Manager, store.BlobStore) {
	t.Helper()
	st := store.NewMemory()
	saveModelArtifacts(t, st)
	m := New(Config{
		Store:  st,
		Logger: zerolog.Nop(),
		Backend: func(*gguf.Container) (engine.Forward, error) {
			return &fixedForward{emit: 2, vocab: 8}, nil
		},
	})
	if err := m.SetupModel(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return m, st
}

func greedy(prompt string, maxTokens int) types.GenerateRequest {
	cfg := types.DefaultGenerationConfig()
	cfg.Temperature = 0
	cfg.RepeatPenalty = 1
	return types.GenerateRequest{Prompt: prompt, Config: &cfg, MaxTokens: maxTokens}
}

func TestSetupRequiresArtifacts(t *testing.T) {
	m := New(Config{Store: store.NewMemory(), Logger: zerolog.Nop()})
	err := m.SetupModel()
	if !engine.IsArtifactNotFound(err) {
		t.Fatalf("err = %v, want artifact not found", err)
	}
}

func TestSetupGenerateInfoReset(t *testing.T) {
	m, _ := newLoadedManager(t)

	info := m.ModelInfo()
	if !info.Loaded || info.CurrentTokens != 0 {
		t.Fatalf("info = %+v", info)
	}

	resp := m.Generate(greedy("ab", 3))
	if !resp.Success {
		t.Fatalf("generate: %s", resp.Error)
	}
	if resp.Text != "ccc" {
		t.Fatalf("text = %q", resp.Text)
	}

	info = m.ModelInfo()
	if info.CurrentTokens != 5 {
		t.Fatalf("tokens = %d, want 5", info.CurrentTokens)
	}

	if err := m.ResetGeneration(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := m.ModelInfo().CurrentTokens; got != 0 {
		t.Fatalf("tokens after reset = %d", got)
	}
}

func TestSetupFailureKeepsServingSession(t *testing.T) {
	m, st := newLoadedManager(t)

	// corrupt the weights and try to reload; the old session must survive
	if err := st.Save(types.KeyModelWeights, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if err := m.SetupModel(); !engine.IsDecode(err) {
		t.Fatalf("err = %v, want decode failure", err)
	}

	resp := m.Generate(greedy("ab", 1))
	if !resp.Success {
		t.Fatalf("old session stopped serving: %s", resp.Error)
	}
}

func TestSetupReplacesSession(t *testing.T) {
	m, _ := newLoadedManager(t)
	if resp := m.Generate(greedy("ab", 2)); !resp.Success {
		t.Fatalf("generate: %s", resp.Error)
	}
	if err := m.SetupModel(); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if got := m.ModelInfo().CurrentTokens; got != 0 {
		t.Fatalf("fresh session has %d tokens", got)
	}
}

func TestGenerateUntokenizablePrompt(t *testing.T) {
	m, _ := newLoadedManager(t)
	resp := m.Generate(greedy("zzz", 3))
	if resp.Success {
		t.Fatal("expected tokenization failure")
	}
	if !strings.Contains(resp.Error, "tokenization") {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestCloseTearsDownSession(t *testing.T) {
	m, _ := newLoadedManager(t)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.ModelInfo().Loaded {
		t.Fatal("model still reported loaded after close")
	}
}
