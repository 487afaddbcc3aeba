package qwen

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync"

	"inferd/internal/gguf"
)

// mat is a row-major weight matrix kept in its GGUF storage format. Rows are
// dequantized on the fly during matVec so large f16 or q8_0 checkpoints never
// get materialized as f32.
type mat struct {
	rows, cols int
	typ        gguf.TensorType
	raw        []byte
}

func loadMat(c *gguf.Container, name string) (*mat, error) {
	info, ok := c.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("missing tensor %s", name)
	}
	if len(info.Dims) != 2 {
		return nil, fmt.Errorf("tensor %s: want 2 dims, got %d", name, len(info.Dims))
	}
	switch info.Type {
	case gguf.TensorF32, gguf.TensorF16, gguf.TensorQ8_0:
	default:
		return nil, fmt.Errorf("tensor %s: unsupported storage type %d", name, uint32(info.Type))
	}
	raw, err := c.TensorData(info)
	if err != nil {
		return nil, err
	}
	// GGUF dims are [cols, rows] in ggml order
	return &mat{
		rows: int(info.Dims[1]),
		cols: int(info.Dims[0]),
		typ:  info.Type,
		raw:  raw,
	}, nil
}

func loadVec(c *gguf.Container, name string) ([]float32, error) {
	info, ok := c.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("missing tensor %s", name)
	}
	if len(info.Dims) != 1 {
		return nil, fmt.Errorf("tensor %s: want 1 dim, got %d", name, len(info.Dims))
	}
	if info.Type != gguf.TensorF32 {
		return nil, fmt.Errorf("tensor %s: norm weights must be f32", name)
	}
	raw, err := c.TensorData(info)
	if err != nil {
		return nil, err
	}
	out := make([]float32, info.Dims[0])
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// row writes row r of m into dst (len cols).
func (m *mat) row(dst []float32, r int) {
	switch m.typ {
	case gguf.TensorF32:
		base := r * m.cols * 4
		for i := 0; i < m.cols; i++ {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(m.raw[base+i*4:]))
		}
	case gguf.TensorF16:
		base := r * m.cols * 2
		for i := 0; i < m.cols; i++ {
			dst[i] = f16to32(binary.LittleEndian.Uint16(m.raw[base+i*2:]))
		}
	case gguf.TensorQ8_0:
		blocks := m.cols / 32
		base := r * blocks * 34
		for b := 0; b < blocks; b++ {
			off := base + b*34
			scale := f16to32(binary.LittleEndian.Uint16(m.raw[off:]))
			q := m.raw[off+2 : off+34]
			for i := 0; i < 32; i++ {
				dst[b*32+i] = float32(int8(q[i])) * scale
			}
		}
	}
}

func (m *mat) dotRow(r int, x []float32) float32 {
	var sum float32
	switch m.typ {
	case gguf.TensorF32:
		base := r * m.cols * 4
		for i := 0; i < m.cols; i++ {
			sum += math.Float32frombits(binary.LittleEndian.Uint32(m.raw[base+i*4:])) * x[i]
		}
	case gguf.TensorF16:
		base := r * m.cols * 2
		for i := 0; i < m.cols; i++ {
			sum += f16to32(binary.LittleEndian.Uint16(m.raw[base+i*2:])) * x[i]
		}
	case gguf.TensorQ8_0:
		blocks := m.cols / 32
		base := r * blocks * 34
		for b := 0; b < blocks; b++ {
			off := base + b*34
			scale := f16to32(binary.LittleEndian.Uint16(m.raw[off:]))
			q := m.raw[off+2 : off+34]
			var blockSum float32
			for i := 0; i < 32; i++ {
				blockSum += float32(int8(q[i])) * x[b*32+i]
			}
			sum += blockSum * scale
		}
	}
	return sum
}

// matVec computes dst = m * x, chunking rows across goroutines for wide
// matrices. Small projections stay single threaded; the goroutine handoff
// costs more than the math below a few thousand rows.
func matVec(dst []float32, m *mat, x []float32) {
	if len(dst) < m.rows || len(x) < m.cols {
		panic("matvec shape mismatch")
	}
	workers := runtime.GOMAXPROCS(0)
	if m.rows < 1024 || workers <= 1 {
		for r := 0; r < m.rows; r++ {
			dst[r] = m.dotRow(r, x)
		}
		return
	}
	if workers > m.rows {
		workers = m.rows
	}
	chunk := (m.rows + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		rs := w * chunk
		re := rs + chunk
		if re > m.rows {
			re = m.rows
		}
		if rs >= re {
			break
		}
		wg.Add(1)
		go func(rs, re int) {
			defer wg.Done()
			for r := rs; r < re; r++ {
				dst[r] = m.dotRow(r, x)
			}
		}(rs, re)
	}
	wg.Wait()
}

// rmsNorm writes normalize(src) * weight into dst. dst and src may alias.
func rmsNorm(dst, src, weight []float32, eps float32) {
	var ss float64
	for _, v := range src {
		ss += float64(v) * float64(v)
	}
	inv := float32(1.0 / math.Sqrt(ss/float64(len(src))+float64(eps)))
	for i := range src {
		dst[i] = src[i] * inv * weight[i]
	}
}

func addInPlace(dst, src []float32) {
	for i := range src {
		dst[i] += src[i]
	}
}

func silu(x float32) float32 {
	return x / (1 + float32(math.Exp(float64(-x))))
}

// applyRoPE rotates q or k in place for one position. Pairing follows the
// rotate-half convention: element i pairs with i + headDim/2.
func applyRoPE(x []float32, nHead, headDim, pos int, invFreq []float64) {
	half := headDim / 2
	for h := 0; h < nHead; h++ {
		base := h * headDim
		for i := 0; i < half; i++ {
			angle := float64(pos) * invFreq[i]
			c := float32(math.Cos(angle))
			s := float32(math.Sin(angle))
			x0 := x[base+i]
			x1 := x[base+i+half]
			x[base+i] = x0*c - x1*s
			x[base+i+half] = x0*s + x1*c
		}
	}
}

// f16to32 converts an IEEE 754 half-precision value.
func f16to32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := int32(h&0x7c00) >> 10
	mant := uint32(h & 0x03ff)
	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal: renormalize
		e := int32(-1)
		for mant&0x0400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x03ff
		return math.Float32frombits(sign | uint32(e+127-13)<<23 | mant<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	default:
		return math.Float32frombits(sign | uint32(exp+127-15)<<23 | mant<<13)
	}
}
