package engine

import (
	"github.com/rs/zerolog"

	"inferd/internal/gguf"
	"inferd/internal/store"
	"inferd/internal/tokenizer"
	"inferd/pkg/types"
)

// State tracks where a session is in its lifecycle. Transitions are linear
// within one generation call: Loaded -> Priming -> Decoding -> Stopped, then
// back to Loaded for the next call. Reset and Close return to Unloaded only
// when the session is torn down.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StatePriming
	StateDecoding
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StatePriming:
		return "priming"
	case StateDecoding:
		return "decoding"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// LoadOptions configures session construction.
type LoadOptions struct {
	// Backend turns the decoded weights container into a Forward capability.
	Backend BackendFactory
	Logger  zerolog.Logger
	// Meter supplies compute units for the budget check. Nil falls back to a
	// wall-clock meter.
	Meter Meter
	// BudgetCeiling caps compute units per generation call. Zero uses
	// DefaultBudgetCeiling.
	BudgetCeiling uint64
	// MaxTokens is the server default for calls that do not set their own.
	// Zero means 50.
	MaxTokens int
}

// Session is the singleton model session: one Forward capability, one
// tokenizer, and the token history mirrored by the backend's attention cache.
// The invariant is that after every forward pass the cache length equals
// len(tokens); a divergence means positions are corrupt and every subsequent
// token would be garbage, so the session panics rather than continue.
type Session struct {
	model  Forward
	tok    tokenizer.Tokenizer
	tokens []int

	eosToken int
	state    State

	meter     Meter
	ceiling   uint64
	maxTokens int
	log       zerolog.Logger
}

// Load reads the weights and tokenizer blobs from stable storage, decodes and
// validates them, and constructs a fresh session. Any failure leaves the
// caller's current session untouched.
func Load(st store.BlobStore, opts LoadOptions) (*Session, error) {
	if opts.Backend == nil {
		opts.Backend = NewBackend
	}
	if opts.Meter == nil {
		opts.Meter = NewClockMeter(0)
	}
	if opts.BudgetCeiling == 0 {
		opts.BudgetCeiling = DefaultBudgetCeiling
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 50
	}

	weights, err := st.Load(types.KeyModelWeights)
	if err != nil {
		if store.IsKeyNotFound(err) {
			return nil, ErrArtifactNotFound(types.KeyModelWeights)
		}
		return nil, err
	}
	tokData, err := st.Load(types.KeyTokenizer)
	if err != nil {
		if store.IsKeyNotFound(err) {
			return nil, ErrArtifactNotFound(types.KeyTokenizer)
		}
		return nil, err
	}

	tok, err := tokenizer.DecodeBytes(tokData)
	if err != nil {
		return nil, ErrDecode("tokenizer", err)
	}

	container, err := gguf.Decode(weights)
	if err != nil {
		return nil, ErrDecode("weights", err)
	}
	if err := container.Validate(); err != nil {
		return nil, ErrConstruction(err)
	}

	model, err := opts.Backend(container)
	if err != nil {
		if IsDependencyUnavailable(err) {
			return nil, err
		}
		return nil, ErrConstruction(err)
	}

	s := &Session{
		model:     model,
		tok:       tok,
		eosToken:  probeEOS(tok, opts.Logger),
		state:     StateLoaded,
		meter:     opts.Meter,
		ceiling:   opts.BudgetCeiling,
		maxTokens: opts.MaxTokens,
		log:       opts.Logger,
	}
	arch, _ := container.Architecture()
	s.log.Info().
		Str("architecture", arch).
		Int("eos_token", s.eosToken).
		Int("vocab", len(tok.Vocab())).
		Msg("model session loaded")
	return s, nil
}

// probeEOS resolves the end-of-sequence token id from the vocabulary.
// Preference order: <|endoftext|>, then the chat end marker <|im_end|>, then
// id 0 with a warning since stopping then depends entirely on max_tokens.
func probeEOS(tok tokenizer.Tokenizer, log zerolog.Logger) int {
	vocab := tok.Vocab()
	if id, ok := vocab["<|endoftext|>"]; ok {
		return id
	}
	if id, ok := vocab["<|im_end|>"]; ok {
		return id
	}
	log.Warn().Msg("no end-of-sequence marker in vocabulary, falling back to token id 0")
	return 0
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// HistoryLen returns the current token history length.
func (s *Session) HistoryLen() int { return len(s.tokens) }

// EOSToken returns the resolved end-of-sequence token id.
func (s *Session) EOSToken() int { return s.eosToken }

// Reset clears the token history and the attention cache. The model stays
// loaded; the next generation call starts from an empty context.
func (s *Session) Reset() {
	s.tokens = s.tokens[:0]
	s.model.Reset()
	s.state = StateLoaded
}

// Close releases the backend and marks the session unusable.
func (s *Session) Close() error {
	s.state = StateUnloaded
	s.tokens = nil
	return s.model.Close()
}
