package qwen

import (
	"encoding/binary"
	"math"
	"testing"

	"inferd/internal/gguf"
)

func TestF16Conversion(t *testing.T) {
	cases := []struct {
		bits uint16
		want float32
	}{
		{0x0000, 0},
		{0x3c00, 1},
		{0xc000, -2},
		{0x3800, 0.5},
		{0x4248, 3.140625},
		{0x0001, float32(math.Pow(2, -24))}, // smallest subnormal
		{0x7bff, 65504},                     // largest finite
	}
	for _, tc := range cases {
		if got := f16to32(tc.bits); got != tc.want {
			t.Errorf("f16to32(%#04x) = %v, want %v", tc.bits, got, tc.want)
		}
	}
	if !math.IsInf(float64(f16to32(0x7c00)), 1) {
		t.Error("0x7c00 must convert to +inf")
	}
	if !math.IsInf(float64(f16to32(0xfc00)), -1) {
		t.Error("0xfc00 must convert to -inf")
	}
}

func TestMatRowF16(t *testing.T) {
	raw := make([]byte, 4*2)
	for i, h := range []uint16{0x3c00, 0xc000, 0x3800, 0x0000} {
		binary.LittleEndian.PutUint16(raw[i*2:], h)
	}
	m := &mat{rows: 1, cols: 4, typ: gguf.TensorF16, raw: raw}
	dst := make([]float32, 4)
	m.row(dst, 0)
	want := []float32{1, -2, 0.5, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("row[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestMatRowQ8(t *testing.T) {
	// one block: scale 0.5, quants 0..31
	raw := make([]byte, 34)
	binary.LittleEndian.PutUint16(raw, 0x3800)
	for i := 0; i < 32; i++ {
		raw[2+i] = byte(int8(i))
	}
	m := &mat{rows: 1, cols: 32, typ: gguf.TensorQ8_0, raw: raw}
	dst := make([]float32, 32)
	m.row(dst, 0)
	for i := range dst {
		if want := float32(i) * 0.5; dst[i] != want {
			t.Fatalf("row[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestDotRowMatchesDequant(t *testing.T) {
	raw := make([]byte, 34)
	binary.LittleEndian.PutUint16(raw, 0x3c00)
	for i := 0; i < 32; i++ {
		raw[2+i] = byte(int8(i - 16))
	}
	m := &mat{rows: 1, cols: 32, typ: gguf.TensorQ8_0, raw: raw}

	x := make([]float32, 32)
	for i := range x {
		x[i] = float32(i%5) * 0.25
	}
	row := make([]float32, 32)
	m.row(row, 0)
	var want float32
	for i := range x {
		want += row[i] * x[i]
	}
	got := m.dotRow(0, x)
	if diff := math.Abs(float64(got - want)); diff > 1e-4 {
		t.Fatalf("dotRow = %v, dequant sum = %v", got, want)
	}
}

func TestRMSNormUnitInput(t *testing.T) {
	src := []float32{1, 1, 1, 1}
	weight := []float32{2, 2, 2, 2}
	dst := make([]float32, 4)
	rmsNorm(dst, src, weight, 1e-6)
	for i := range dst {
		if math.Abs(float64(dst[i]-2)) > 1e-4 {
			t.Fatalf("dst[%d] = %v, want ~2", i, dst[i])
		}
	}
}

func TestApplyRoPEPositionZeroIsIdentity(t *testing.T) {
	x := []float32{0.3, -0.7, 1.1, 0.2}
	orig := append([]float32(nil), x...)
	invFreq := []float64{1, 0.1}
	applyRoPE(x, 1, 4, 0, invFreq)
	for i := range x {
		if x[i] != orig[i] {
			t.Fatalf("position 0 rotated x[%d]: %v -> %v", i, orig[i], x[i])
		}
	}
}

func TestApplyRoPEPreservesNorm(t *testing.T) {
	x := []float32{0.3, -0.7, 1.1, 0.2}
	norm := func(v []float32) float64 {
		var s float64
		for _, f := range v {
			s += float64(f) * float64(f)
		}
		return s
	}
	before := norm(x)
	applyRoPE(x, 1, 4, 7, []float64{1, 0.1})
	if after := norm(x); math.Abs(after-before) > 1e-5 {
		t.Fatalf("rotation changed norm: %v -> %v", before, after)
	}
}
