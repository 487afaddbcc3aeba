package types

// Reserved blob store keys the model session loads from.
const (
	KeyModelWeights = "model_weights"
	KeyTokenizer    = "tokenizer"
)
