package engine

import (
	"fmt"

	"inferd/pkg/types"
)

// Generate runs one budget-bounded generation call: prime the cache with the
// prompt, then decode token by token until EOS, the token limit, or the
// compute ceiling. A budget stop is not a failure; the response carries
// whatever text was produced with Success still true. Only a prompt the
// tokenizer rejects fails the call.
func (s *Session) Generate(req types.GenerateRequest) types.GenerateResponse {
	cfg := types.DefaultGenerationConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	// every call starts from an empty context
	s.tokens = s.tokens[:0]
	s.model.Reset()
	sampler := NewSampler(cfg)

	promptIDs, err := s.tok.Encode(req.Prompt)
	if err != nil {
		s.state = StateLoaded
		return types.GenerateResponse{Error: ErrTokenization(err).Error()}
	}
	if len(promptIDs) == 0 {
		s.state = StateLoaded
		return types.GenerateResponse{Error: "tokenization error: prompt produced no tokens"}
	}

	startUnits := s.meter.Units()

	// priming: one forward over the whole prompt fills the cache and yields
	// logits for the first sampled token
	s.state = StatePriming
	s.tokens = append(s.tokens, promptIDs...)
	logits, err := s.forward(promptIDs, 0)
	if err != nil {
		s.state = StateStopped
		return types.GenerateResponse{
			ComputeUnitsUsed: s.meter.Units() - startUnits,
			Error:            err.Error(),
		}
	}

	s.state = StateDecoding
	var out []byte
	generated := 0
	for {
		next := sampler.Sample(logits, s.tokens)
		// the sampled id always enters the history and the output, the end
		// marker included; it is the stop decision that comes after
		s.tokens = append(s.tokens, next)
		generated++
		out = append(out, s.decodeToken(next)...)
		if next == s.eosToken {
			s.log.Debug().Int("token", next).Msg("end-of-sequence reached")
			break
		}

		if generated >= maxTokens {
			break
		}
		used := s.meter.Units() - startUnits
		if used > s.ceiling {
			s.log.Warn().
				Uint64("units_used", used).
				Uint64("ceiling", s.ceiling).
				Int("tokens", generated).
				Msg("compute budget exhausted, returning partial output")
			break
		}

		logits, err = s.forward(s.tokens[len(s.tokens)-1:], len(s.tokens)-1)
		if err != nil {
			s.state = StateStopped
			return types.GenerateResponse{
				Text:             string(out),
				TokensGenerated:  generated,
				ComputeUnitsUsed: s.meter.Units() - startUnits,
				Error:            err.Error(),
			}
		}
	}

	s.state = StateStopped
	return types.GenerateResponse{
		Text:             string(out),
		TokensGenerated:  generated,
		ComputeUnitsUsed: s.meter.Units() - startUnits,
		Success:          true,
	}
}

// forward evaluates ids at offset and then verifies the cache length against
// the token history. The two advancing out of step means every later position
// would attend to the wrong keys, which silently corrupts all output; that is
// a programming error, not an input error, so it panics.
func (s *Session) forward(ids []int, offset int) ([]float32, error) {
	logits, err := s.model.Forward(ids, offset)
	if err != nil {
		return nil, err
	}
	if got, want := s.model.CacheLen(), len(s.tokens); got != want {
		panic(fmt.Sprintf("attention cache length %d diverged from token history length %d", got, want))
	}
	return logits, nil
}

// decodeToken renders a single token id to text. A token the tokenizer cannot
// render contributes nothing rather than aborting the whole call.
func (s *Session) decodeToken(id int) string {
	text, err := s.tok.Decode([]int{id})
	if err != nil {
		s.log.Warn().Int("token", id).Err(err).Msg("undecodable token, skipping")
		return ""
	}
	return text
}
