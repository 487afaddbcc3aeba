// Package qwen is a pure-Go forward pass for qwen3-family GGUF checkpoints.
// It trades throughput for portability: no cgo, no SIMD intrinsics, weights
// dequantized per row during the matrix-vector products. One token per step,
// logits for that token only, positions tracked by an internal key/value
// cache.
package qwen

import (
	"fmt"
	"math"

	"inferd/internal/gguf"
)

type config struct {
	embedding  int
	blocks     int
	heads      int
	kvHeads    int
	headDim    int
	ffn        int
	maxContext int
	rmsEps     float32
	ropeTheta  float64
}

type layer struct {
	attnNorm []float32
	qNorm    []float32
	kNorm    []float32
	wq       *mat
	wk       *mat
	wv       *mat
	wo       *mat

	ffnNorm []float32
	ffnUp   *mat
	ffnGate *mat
	ffnDown *mat

	// cache stores one kvHeads*headDim slab per evaluated position
	cacheK []float32
	cacheV []float32
}

// Model is a loaded qwen3 checkpoint plus its attention cache.
type Model struct {
	cfg        config
	embed      *mat
	layers     []layer
	outputNorm []float32
	output     *mat // tied to embed when the checkpoint has no output.weight

	pos      int
	invFreq  []float64
	scratch  scratch
	released bool
}

type scratch struct {
	x, tmp, tmp2     []float32
	q, k, v, attnOut []float32
	scores           []float32
	ffnUp, ffnGate   []float32
	logits           []float32
}

// New loads every tensor a qwen3 forward pass needs from the container.
// Dims are validated as they load; a checkpoint for another architecture or
// with tensors this runtime cannot read fails here, not mid-generation.
func New(c *gguf.Container) (*Model, error) {
	arch, _ := c.Architecture()
	cfg, err := readConfig(c, arch)
	if err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg}
	if m.embed, err = loadMat(c, "token_embd.weight"); err != nil {
		return nil, err
	}
	if m.embed.cols != cfg.embedding {
		return nil, fmt.Errorf("token_embd.weight: embedding dim %d, want %d", m.embed.cols, cfg.embedding)
	}
	if m.outputNorm, err = loadVec(c, "output_norm.weight"); err != nil {
		return nil, err
	}
	if _, ok := c.Tensor("output.weight"); ok {
		if m.output, err = loadMat(c, "output.weight"); err != nil {
			return nil, err
		}
	} else {
		m.output = m.embed
	}

	m.layers = make([]layer, cfg.blocks)
	for i := range m.layers {
		if err := m.loadLayer(c, i); err != nil {
			return nil, err
		}
	}

	m.invFreq = make([]float64, cfg.headDim/2)
	for i := range m.invFreq {
		m.invFreq[i] = 1.0 / math.Pow(cfg.ropeTheta, float64(2*i)/float64(cfg.headDim))
	}
	m.initScratch()
	return m, nil
}

func readConfig(c *gguf.Container, arch string) (config, error) {
	var cfg config
	if arch == "" {
		return cfg, fmt.Errorf("missing general.architecture")
	}
	uintKey := func(suffix string) (int, error) {
		v, ok := c.Uint(arch + "." + suffix)
		if !ok {
			return 0, fmt.Errorf("missing metadata %s.%s", arch, suffix)
		}
		return int(v), nil
	}
	var err error
	if cfg.embedding, err = uintKey("embedding_length"); err != nil {
		return cfg, err
	}
	if cfg.blocks, err = uintKey("block_count"); err != nil {
		return cfg, err
	}
	if cfg.heads, err = uintKey("attention.head_count"); err != nil {
		return cfg, err
	}
	if cfg.ffn, err = uintKey("feed_forward_length"); err != nil {
		return cfg, err
	}
	if v, ok := c.Uint(arch + ".attention.head_count_kv"); ok {
		cfg.kvHeads = int(v)
	} else {
		cfg.kvHeads = cfg.heads
	}
	if v, ok := c.Uint(arch + ".attention.key_length"); ok {
		cfg.headDim = int(v)
	} else {
		cfg.headDim = cfg.embedding / cfg.heads
	}
	if v, ok := c.Uint(arch + ".context_length"); ok {
		cfg.maxContext = int(v)
	} else {
		cfg.maxContext = 4096
	}
	// generation never needs the full advertised window here
	if cfg.maxContext > 8192 {
		cfg.maxContext = 8192
	}
	cfg.rmsEps = 1e-6
	if v, ok := c.Float(arch + ".attention.layer_norm_rms_epsilon"); ok {
		cfg.rmsEps = float32(v)
	}
	cfg.ropeTheta = 10000
	if v, ok := c.Float(arch + ".rope.freq_base"); ok {
		cfg.ropeTheta = v
	}
	if cfg.heads <= 0 || cfg.kvHeads <= 0 || cfg.heads%cfg.kvHeads != 0 {
		return cfg, fmt.Errorf("bad head configuration: %d query, %d kv", cfg.heads, cfg.kvHeads)
	}
	if cfg.headDim%2 != 0 {
		return cfg, fmt.Errorf("head dim %d must be even", cfg.headDim)
	}
	return cfg, nil
}

func (m *Model) loadLayer(c *gguf.Container, i int) error {
	l := &m.layers[i]
	name := func(s string) string { return fmt.Sprintf("blk.%d.%s.weight", i, s) }
	var err error
	if l.attnNorm, err = loadVec(c, name("attn_norm")); err != nil {
		return err
	}
	if l.qNorm, err = loadVec(c, name("attn_q_norm")); err != nil {
		return err
	}
	if l.kNorm, err = loadVec(c, name("attn_k_norm")); err != nil {
		return err
	}
	if l.wq, err = loadMat(c, name("attn_q")); err != nil {
		return err
	}
	if l.wk, err = loadMat(c, name("attn_k")); err != nil {
		return err
	}
	if l.wv, err = loadMat(c, name("attn_v")); err != nil {
		return err
	}
	if l.wo, err = loadMat(c, name("attn_output")); err != nil {
		return err
	}
	if l.ffnNorm, err = loadVec(c, name("ffn_norm")); err != nil {
		return err
	}
	if l.ffnUp, err = loadMat(c, name("ffn_up")); err != nil {
		return err
	}
	if l.ffnGate, err = loadMat(c, name("ffn_gate")); err != nil {
		return err
	}
	if l.ffnDown, err = loadMat(c, name("ffn_down")); err != nil {
		return err
	}
	if l.wq.rows != m.cfg.heads*m.cfg.headDim {
		return fmt.Errorf("%s: %d rows, want %d", name("attn_q"), l.wq.rows, m.cfg.heads*m.cfg.headDim)
	}
	if l.wk.rows != m.cfg.kvHeads*m.cfg.headDim {
		return fmt.Errorf("%s: %d rows, want %d", name("attn_k"), l.wk.rows, m.cfg.kvHeads*m.cfg.headDim)
	}
	kvStride := m.cfg.kvHeads * m.cfg.headDim
	l.cacheK = make([]float32, m.cfg.maxContext*kvStride)
	l.cacheV = make([]float32, m.cfg.maxContext*kvStride)
	return nil
}

func (m *Model) initScratch() {
	embd := m.cfg.embedding
	qDim := m.cfg.heads * m.cfg.headDim
	kvDim := m.cfg.kvHeads * m.cfg.headDim
	m.scratch = scratch{
		x:       make([]float32, embd),
		tmp:     make([]float32, embd),
		tmp2:    make([]float32, embd),
		q:       make([]float32, qDim),
		k:       make([]float32, kvDim),
		v:       make([]float32, kvDim),
		attnOut: make([]float32, qDim),
		scores:  make([]float32, m.cfg.maxContext),
		ffnUp:   make([]float32, m.cfg.ffn),
		ffnGate: make([]float32, m.cfg.ffn),
		logits:  make([]float32, m.output.rows),
	}
}

// Forward evaluates ids starting at position offset and returns logits for
// the last one. offset must equal the current cache length; the caller
// controls positions explicitly and the cache only ever grows forward.
func (m *Model) Forward(ids []int, offset int) ([]float32, error) {
	if m.released {
		return nil, fmt.Errorf("model is closed")
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}
	if offset != m.pos {
		return nil, fmt.Errorf("position offset %d does not match cache length %d", offset, m.pos)
	}
	if m.pos+len(ids) > m.cfg.maxContext {
		return nil, fmt.Errorf("context window exceeded: %d + %d > %d", m.pos, len(ids), m.cfg.maxContext)
	}
	for _, id := range ids {
		if id < 0 || id >= m.embed.rows {
			return nil, fmt.Errorf("token id %d out of vocabulary range %d", id, m.embed.rows)
		}
		m.step(id)
	}
	out := make([]float32, len(m.scratch.logits))
	copy(out, m.scratch.logits)
	return out, nil
}

// step runs one token through every block and leaves logits in scratch.
func (m *Model) step(id int) {
	x := m.scratch.x
	m.embed.row(x, id)

	for i := range m.layers {
		l := &m.layers[i]

		rmsNorm(m.scratch.tmp, x, l.attnNorm, m.cfg.rmsEps)
		m.attention(l, m.scratch.tmp)
		addInPlace(x, m.scratch.tmp2)

		rmsNorm(m.scratch.tmp, x, l.ffnNorm, m.cfg.rmsEps)
		m.ffn(l, m.scratch.tmp)
		addInPlace(x, m.scratch.tmp2)
	}

	rmsNorm(m.scratch.tmp, x, m.outputNorm, m.cfg.rmsEps)
	matVec(m.scratch.logits, m.output, m.scratch.tmp)
	m.pos++
}

// attention leaves its projected output in scratch.tmp2.
func (m *Model) attention(l *layer, x []float32) {
	heads := m.cfg.heads
	kvHeads := m.cfg.kvHeads
	headDim := m.cfg.headDim
	kvStride := kvHeads * headDim
	q, k, v := m.scratch.q, m.scratch.k, m.scratch.v

	matVec(q, l.wq, x)
	matVec(k, l.wk, x)
	matVec(v, l.wv, x)

	// per-head q/k norm is what separates qwen3 from its predecessors
	for h := 0; h < heads; h++ {
		s := q[h*headDim : (h+1)*headDim]
		rmsNorm(s, s, l.qNorm, m.cfg.rmsEps)
	}
	for h := 0; h < kvHeads; h++ {
		s := k[h*headDim : (h+1)*headDim]
		rmsNorm(s, s, l.kNorm, m.cfg.rmsEps)
	}

	applyRoPE(q, heads, headDim, m.pos, m.invFreq)
	applyRoPE(k, kvHeads, headDim, m.pos, m.invFreq)

	copy(l.cacheK[m.pos*kvStride:], k)
	copy(l.cacheV[m.pos*kvStride:], v)

	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	groups := heads / kvHeads
	attnOut := m.scratch.attnOut
	scores := m.scratch.scores[:m.pos+1]

	for h := 0; h < heads; h++ {
		qh := q[h*headDim : (h+1)*headDim]
		kvh := (h / groups) * headDim

		for t := 0; t <= m.pos; t++ {
			kt := l.cacheK[t*kvStride+kvh : t*kvStride+kvh+headDim]
			var dot float32
			for i := range qh {
				dot += qh[i] * kt[i]
			}
			scores[t] = dot * scale
		}

		// softmax over the causal window
		maxScore := scores[0]
		for _, s := range scores[1:] {
			if s > maxScore {
				maxScore = s
			}
		}
		var sum float32
		for t := range scores {
			scores[t] = float32(math.Exp(float64(scores[t] - maxScore)))
			sum += scores[t]
		}
		inv := 1 / sum

		out := attnOut[h*headDim : (h+1)*headDim]
		for i := range out {
			out[i] = 0
		}
		for t := 0; t <= m.pos; t++ {
			w := scores[t] * inv
			vt := l.cacheV[t*kvStride+kvh : t*kvStride+kvh+headDim]
			for i := range out {
				out[i] += w * vt[i]
			}
		}
	}

	matVec(m.scratch.tmp2, l.wo, attnOut)
}

// ffn leaves its output in scratch.tmp2.
func (m *Model) ffn(l *layer, x []float32) {
	matVec(m.scratch.ffnUp, l.ffnUp, x)
	matVec(m.scratch.ffnGate, l.ffnGate, x)
	for i := range m.scratch.ffnUp {
		m.scratch.ffnUp[i] *= silu(m.scratch.ffnGate[i])
	}
	matVec(m.scratch.tmp2, l.ffnDown, m.scratch.ffnUp)
}

// CacheLen returns the number of positions evaluated since the last reset.
func (m *Model) CacheLen() int { return m.pos }

// Reset rewinds the cache to position zero. Cached slabs past the new length
// are never read again so they are left in place.
func (m *Model) Reset() { m.pos = 0 }

// Close releases the model. The weight data references the original blob and
// is reclaimed with it.
func (m *Model) Close() error {
	m.released = true
	m.layers = nil
	return nil
}
