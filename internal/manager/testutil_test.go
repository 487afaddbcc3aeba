package manager

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/goccy/go-json"

	"inferd/internal/gguf"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// minimalWeights builds a metadata-only GGUF blob that passes validation.
func minimalWeights(t *testing.T) []byte {
	t.Helper()
	var b bytes.Buffer
	le := binary.LittleEndian
	str := func(s string) {
		var n [8]byte
		le.PutUint64(n[:], uint64(len(s)))
		b.Write(n[:])
		b.WriteString(s)
	}
	u32 := func(v uint32) {
		var n [4]byte
		le.PutUint32(n[:], v)
		b.Write(n[:])
	}
	u64 := func(v uint64) {
		var n [8]byte
		le.PutUint64(n[:], v)
		b.Write(n[:])
	}
	b.WriteString("GGUF")
	u32(3)
	u64(0)
	u64(2)
	str("general.architecture")
	u32(uint32(gguf.TypeString))
	str("qwen3")
	str("qwen3.block_count")
	u32(uint32(gguf.TypeUint32))
	u32(0)
	return b.Bytes()
}

// minimalTokenizer builds an HF tokenizer.json with a three-letter vocabulary
// and the qwen end marker.
func minimalTokenizer(t *testing.T) []byte {
	t.Helper()
	doc := map[string]any{
		"model": map[string]any{
			"type":   "BPE",
			"vocab":  map[string]int{"a": 0, "b": 1, "c": 2},
			"merges": []string{},
		},
		"added_tokens": []map[string]any{
			{"id": 3, "content": "<|endoftext|>", "special": true},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return raw
}

func saveModelArtifacts(t *testing.T, st store.BlobStore) {
	t.Helper()
	if err := st.Save(types.KeyModelWeights, minimalWeights(t)); err != nil {
		t.Fatalf("save weights: %v", err)
	}
	if err := st.Save(types.KeyTokenizer, minimalTokenizer(t)); err != nil {
		t.Fatalf("save tokenizer: %v", err)
	}
}

// fixedForward always steers toward one token id.
type fixedForward struct {
	pos   int
	emit  int
	vocab int
}

func (f *fixedForward) Forward(ids []int, offset int) ([]float32, error) {
	f.pos += len(ids)
	logits := make([]float32, f.vocab)
	logits[f.emit] = 100
	return logits, nil
}

func (f *fixedForward) CacheLen() int { return f.pos }
func (f *fixedForward) Reset()        { f.pos = 0 }
func (f *fixedForward) Close() error  { return nil }
