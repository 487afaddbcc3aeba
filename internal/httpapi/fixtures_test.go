package httpapi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/internal/gguf"
	"inferd/internal/manager"
	"inferd/internal/store"
)

// fixtureWeights is the smallest GGUF blob that passes validation.
func fixtureWeights(t *testing.T) []byte {
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

func fixtureTokenizer(t *testing.T) []byte {
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

// steadyForward always steers generation toward token id 2 ("c").
type steadyForward struct{ pos int }

func (f *steadyForward) Forward(ids []int, offset int) ([]float32, error) {
	f.pos += len(ids)
	logits := make([]float32, 8)
	logits[2] = 100
	return logits, nil
}

func (f *steadyForward) CacheLen() int { return f.pos }
func (f *steadyForward) Reset()        { f.pos = 0 }
func (f *steadyForward) Close() error  { return nil }

func newTestService(t *testing.T) *manager.Manager {
	t.Helper()
	return manager.New(manager.Config{
		Store:  store.NewMemory(),
		Logger: zerolog.Nop(),
		Backend: func(*gguf.Container) (engine.Forward, error) {
			return &steadyForward{}, nil
		},
	})
}
