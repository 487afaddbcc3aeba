package manager

import (
	"sync"

	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/internal/staging"
	"inferd/internal/store"
)

// Config carries the dependencies and limits a Manager needs.
type Config struct {
	// Store is the durable blob backend. Required.
	Store store.BlobStore
	// Logger for manager and session events. Defaults to a nop logger.
	Logger zerolog.Logger
	// Backend overrides the forward-pass factory; tests inject mocks.
	Backend engine.BackendFactory
	// Meter overrides the compute-unit source; nil uses wall clock.
	Meter engine.Meter
	// BudgetCeiling caps compute units per generation call. Zero uses the
	// engine default.
	BudgetCeiling uint64
	// MaxTokens is the per-call default when a request does not set one.
	MaxTokens int
	// NativeContext is the context window passed to the native llama path
	// when this binary is built with the 'llama' tag.
	NativeContext int
	// NativeThreads bounds native generation threads. Zero lets the runtime
	// decide.
	NativeThreads int
}

// Manager owns the staging assembler, the blob store, and at most one model
// session. The session mutex also serializes generation: the session is
// single threaded by construction and the original service processed one
// call at a time.
type Manager struct {
	log     zerolog.Logger
	store   store.BlobStore
	staging *staging.Assembler

	mu      sync.Mutex
	session *engine.Session
	native  *nativeSession

	cfg Config
}

// New builds a Manager around the given store.
func New(cfg Config) *Manager {
	return &Manager{
		log:     cfg.Logger,
		store:   cfg.Store,
		staging: staging.New(cfg.Store),
		cfg:     cfg,
	}
}

// Ready reports whether the service can take traffic. Upload and storage
// endpoints work as soon as the store does; readiness does not require a
// loaded model.
func (m *Manager) Ready() bool {
	return m.store != nil
}

// Close tears down the session if one is loaded.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.session != nil {
		err = m.session.Close()
		m.session = nil
	}
	if m.native != nil {
		if cerr := m.native.Close(); err == nil {
			err = cerr
		}
		m.native = nil
	}
	return err
}
