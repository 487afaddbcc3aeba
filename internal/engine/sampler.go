package engine

import (
	"math"
	"math/rand"
	"sort"

	"inferd/pkg/types"
)

// Sampler draws token ids from logits using temperature-scaled softmax with
// optional nucleus truncation, or greedy argmax when temperature is disabled.
type Sampler struct {
	rng           *rand.Rand
	temperature   float64
	topP          float64
	repeatPenalty float32
	repeatLastN   int
	greedy        bool
}

// NewSampler builds a sampler from cfg. Temperature <= 0 selects greedy
// argmax; top_p outside (0,1) disables nucleus truncation.
func NewSampler(cfg types.GenerationConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	temp := cfg.Temperature
	if greedy {
		temp = 1
	}
	topP := cfg.TopP
	if topP <= 0 || topP >= 1 {
		topP = 1
	}
	penalty := cfg.RepeatPenalty
	if penalty <= 0 {
		penalty = 1
	}
	lastN := cfg.RepeatLastN
	if lastN < 0 {
		lastN = 0
	}
	return &Sampler{
		rng:           rand.New(rand.NewSource(int64(cfg.Seed))),
		temperature:   temp,
		topP:          topP,
		repeatPenalty: penalty,
		repeatLastN:   lastN,
		greedy:        greedy,
	}
}

// Sample applies the repetition penalty in place over the trailing window of
// recent, then draws one token id.
//
// Penalty convention follows candle/llama.cpp: presence in the window is what
// matters (not frequency), positive logits are divided by the strength and
// negative logits multiplied by it.
func (s *Sampler) Sample(logits []float32, recent []int) int {
	if s.repeatPenalty != 1 && len(recent) > 0 {
		start := len(recent) - s.repeatLastN
		if start < 0 {
			start = 0
		}
		seen := make(map[int]struct{}, s.repeatLastN)
		for _, id := range recent[start:] {
			if id < 0 || id >= len(logits) {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if logits[id] > 0 {
				logits[id] /= s.repeatPenalty
			} else {
				logits[id] *= s.repeatPenalty
			}
		}
	}

	if s.greedy {
		return argmax(logits)
	}

	// softmax over temperature-scaled logits, stabilized by the max
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return logits[idx[a]] > logits[idx[b]] })

	maxLogit := float64(logits[idx[0]])
	probs := make([]float64, len(idx))
	var sum float64
	for i, id := range idx {
		e := math.Exp((float64(logits[id]) - maxLogit) / s.temperature)
		probs[i] = e
		sum += e
	}
	if sum == 0 {
		return idx[0]
	}
	for i := range probs {
		probs[i] /= sum
	}

	// nucleus cut: smallest prefix of the sorted distribution reaching topP
	cut := len(probs)
	if s.topP < 1 {
		var c float64
		for i, p := range probs {
			c += p
			if c >= s.topP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	var mass float64
	for i := 0; i < cut; i++ {
		mass += probs[i]
	}
	r *= mass
	for i := 0; i < cut; i++ {
		c += probs[i]
		if r <= c {
			return idx[i]
		}
	}
	return idx[cut-1]
}

func argmax(logits []float32) int {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return best
}
