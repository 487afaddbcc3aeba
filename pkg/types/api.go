package types

// GenerationConfig carries per-call sampling parameters.
type GenerationConfig struct {
	// Sampling temperature. Values <= 0 disable stochastic sampling (greedy argmax).
	// example: 0.7
	Temperature float64 `json:"temperature"`
	// Nucleus sampling probability mass. Values <= 0 or >= 1 disable truncation.
	// example: 0.9
	TopP float64 `json:"top_p"`
	// Repetition penalty strength. 1.0 disables the penalty.
	// example: 1.1
	RepeatPenalty float32 `json:"repeat_penalty"`
	// Number of trailing history tokens the penalty applies to.
	// example: 64
	RepeatLastN int `json:"repeat_last_n"`
	// Random seed for reproducibility.
	// example: 42
	Seed uint64 `json:"seed"`
}

// DefaultGenerationConfig returns the server-side sampling defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:   0.7,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		RepeatLastN:   64,
		Seed:          42,
	}
}

// GenerateRequest is the payload for POST /generate.
type GenerateRequest struct {
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt"`
	// Optional sampling configuration. Omitted, server defaults apply.
	Config *GenerationConfig `json:"config,omitempty"`
	// Maximum number of new tokens for this call. 0 uses the server default (50).
	// example: 50
	MaxTokens int `json:"max_tokens,omitempty"`
}

// GenerateResponse mirrors the result of one bounded generation call.
// A call that stops early on the compute budget still reports success with
// whatever text was produced.
type GenerateResponse struct {
	// Generated text, possibly partial when the budget ran out.
	Text string `json:"text"`
	// Number of tokens sampled during this call, the end marker included.
	// Prompt tokens do not count.
	TokensGenerated int `json:"tokens_generated"`
	// Compute units consumed during this call.
	ComputeUnitsUsed uint64 `json:"compute_units_used"`
	// False only for hard failures (bad prompt, model not loaded).
	Success bool `json:"success"`
	// Human-readable failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// ModelInfo is returned by GET /model/info.
type ModelInfo struct {
	// Whether a model session is currently loaded.
	// example: true
	Loaded bool `json:"loaded"`
	// Current token history length of the session.
	// example: 17
	CurrentTokens int `json:"current_tokens"`
}

// BufferStatus reports the sequential upload buffer.
type BufferStatus struct {
	// Bytes currently buffered.
	// example: 1048576
	Size int `json:"size"`
}

// ParallelStatus reports the parallel chunk map.
type ParallelStatus struct {
	// Number of chunks currently held.
	// example: 12
	Count int `json:"count"`
	// Present chunk ids in ascending order.
	Ids []uint32 `json:"ids"`
	// Total bytes across all chunks.
	// example: 12582912
	TotalBytes int `json:"total_bytes"`
	// Whether ids form the dense range [0, expected). Only set when the
	// request supplied ?expected=N.
	Complete *bool `json:"complete,omitempty"`
}

// ConsolidateResponse reports the result of a consolidation or a commit.
type ConsolidateResponse struct {
	// Chunks merged, when the operation consolidated the parallel map.
	// example: 12
	Chunks int `json:"chunks,omitempty"`
	// Total bytes written.
	// example: 12582912
	Bytes int `json:"bytes"`
}

// RemovedResponse reports whether a chunk existed before removal.
type RemovedResponse struct {
	Removed bool `json:"removed"`
}

// StorageStatusResponse carries the human-readable storage summary.
type StorageStatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
