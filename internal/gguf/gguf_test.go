package gguf

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// blobWriter builds synthetic GGUF blobs for tests.
type blobWriter struct {
	buf bytes.Buffer
}

func (w *blobWriter) u32(v uint32) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *blobWriter) u64(v uint64) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *blobWriter) str(s string) {
	w.u64(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *blobWriter) kvString(key, val string) {
	w.str(key)
	w.u32(uint32(TypeString))
	w.str(val)
}

func (w *blobWriter) kvUint32(key string, val uint32) {
	w.str(key)
	w.u32(uint32(TypeUint32))
	w.u32(val)
}

func (w *blobWriter) tensor(name string, dims []uint64, ttype TensorType, offset uint64) {
	w.str(name)
	w.u32(uint32(len(dims)))
	for _, d := range dims {
		w.u64(d)
	}
	w.u32(uint32(ttype))
	w.u64(offset)
}

// testContainer builds a two-tensor qwen3-flavored container with padded data.
func testContainer(t *testing.T, mutate func(kv map[string]uint32) map[string]uint32) []byte {
	t.Helper()
	kvInts := map[string]uint32{
		"qwen3.block_count":      2,
		"qwen3.embedding_length": 8,
	}
	if mutate != nil {
		kvInts = mutate(kvInts)
	}
	var w blobWriter
	w.buf.WriteString("GGUF")
	w.u32(3)                        // version
	w.u64(3)                        // tensor count
	w.u64(uint64(1 + len(kvInts))) // kv count
	w.kvString("general.architecture", "qwen3")
	for _, key := range []string{"qwen3.block_count", "qwen3.embedding_length"} {
		if v, ok := kvInts[key]; ok {
			w.kvUint32(key, v)
		}
	}
	for key, v := range kvInts {
		if key != "qwen3.block_count" && key != "qwen3.embedding_length" {
			w.kvUint32(key, v)
		}
	}
	w.tensor("token_embd.weight", []uint64{8, 4}, TensorF32, 0)
	w.tensor("blk.0.attn_q.weight", []uint64{8, 8}, TensorQ8_0, 128)
	w.tensor("blk.1.attn_q.weight", []uint64{8, 8}, TensorQ8_0, 256)
	// pad to alignment and append a data section
	for w.buf.Len()%32 != 0 {
		w.buf.WriteByte(0)
	}
	w.buf.Write(make([]byte, 512))
	return w.buf.Bytes()
}

func TestDecodeWellFormed(t *testing.T) {
	c, err := Decode(testContainer(t, nil))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Header.Version != 3 {
		t.Fatalf("version = %d", c.Header.Version)
	}
	if c.Header.TensorCount != 3 || len(c.Tensors) != 3 {
		t.Fatalf("tensor count = %d/%d", c.Header.TensorCount, len(c.Tensors))
	}
	arch, ok := c.Architecture()
	if !ok || arch != "qwen3" {
		t.Fatalf("architecture = %q ok=%v", arch, ok)
	}
	if n, ok := c.Uint("qwen3.block_count"); !ok || n != 2 {
		t.Fatalf("block_count = %d ok=%v", n, ok)
	}
	if c.DataOffset%c.Alignment != 0 {
		t.Fatalf("data offset %d not aligned to %d", c.DataOffset, c.Alignment)
	}
	if c.Tensors[0].Name != "token_embd.weight" || c.Tensors[0].Dims[0] != 8 {
		t.Fatalf("tensor[0] = %+v", c.Tensors[0])
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	blob := testContainer(t, nil)
	copy(blob, "NOPE")
	if _, err := Decode(blob); err == nil {
		t.Fatal("expected decode failure for bad magic")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	blob := testContainer(t, nil)
	for _, n := range []int{0, 3, 7, 20, len(blob) / 8} {
		if _, err := Decode(blob[:n]); err == nil {
			t.Fatalf("expected decode failure at %d bytes", n)
		}
	}
}

func TestDecodeRejectsOversizedCounts(t *testing.T) {
	// a header may declare far more records than the blob could hold; decoding
	// must reject the count before allocating for it
	header := func(tensors, kvs uint64) *blobWriter {
		var w blobWriter
		w.buf.WriteString("GGUF")
		w.u32(3)
		w.u64(tensors)
		w.u64(kvs)
		return &w
	}

	t.Run("tensor count", func(t *testing.T) {
		if _, err := Decode(header(1<<62, 0).buf.Bytes()); err == nil {
			t.Fatal("expected decode failure for absurd tensor count")
		}
	})
	t.Run("kv count", func(t *testing.T) {
		if _, err := Decode(header(0, 1<<62).buf.Bytes()); err == nil {
			t.Fatal("expected decode failure for absurd kv count")
		}
	})
	t.Run("array length", func(t *testing.T) {
		w := header(0, 1)
		w.str("tokenizer.ggml.tokens")
		w.u32(uint32(TypeArray))
		w.u32(uint32(TypeString))
		w.u64(1 << 61) // element count
		if _, err := Decode(w.buf.Bytes()); err == nil {
			t.Fatal("expected decode failure for absurd array length")
		}
	})
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	blob := testContainer(t, nil)
	binary.LittleEndian.PutUint32(blob[4:], 99)
	if _, err := Decode(blob); err == nil {
		t.Fatal("expected decode failure for version 99")
	}
}

func TestValidateAccepts(t *testing.T) {
	c, err := Decode(testContainer(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsExtraBlock(t *testing.T) {
	// declare a single block; blk.1 then falls outside the architecture
	c, err := Decode(testContainer(t, func(kv map[string]uint32) map[string]uint32 {
		kv["qwen3.block_count"] = 1
		return kv
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected shape validation failure")
	}
}

func TestValidateRejectsEmbeddingMismatch(t *testing.T) {
	c, err := Decode(testContainer(t, func(kv map[string]uint32) map[string]uint32 {
		kv["qwen3.embedding_length"] = 16
		return kv
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected embedding width mismatch")
	}
}

func TestValidateRequiresArchitecture(t *testing.T) {
	var w blobWriter
	w.buf.WriteString("GGUF")
	w.u32(3)
	w.u64(0)
	w.u64(0)
	c, err := Decode(w.buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected missing-architecture failure")
	}
}
