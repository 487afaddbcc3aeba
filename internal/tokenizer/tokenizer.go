// Package tokenizer provides the text<->token-id capability consumed by the
// generation engine. The concrete implementation decodes HuggingFace
// tokenizer.json blobs; the engine only sees the Tokenizer interface.
package tokenizer

// Tokenizer is the opaque encode/decode capability.
type Tokenizer interface {
	// Encode turns text into an ordered token-id sequence.
	Encode(text string) ([]int, error)
	// Decode turns token ids back into text.
	Decode(ids []int) (string, error)
	// Vocab exposes the token->id table, used to probe for end markers.
	Vocab() map[string]int
}
