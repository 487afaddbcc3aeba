package e2e

import (
	"bytes"
	"encoding/binary"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/internal/gguf"
	"inferd/internal/manager"
	"inferd/internal/store"
)

// metadataOnlyWeights builds the smallest valid GGUF blob.
func metadataOnlyWeights() []byte {
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

func bpeTokenizer(t *testing.T) []byte {
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
		t.Fatalf("marshal tokenizer: %v", err)
	}
	return raw
}

// repeatForward always prefers token id 2.
type repeatForward struct{ pos int }

func (f *repeatForward) Forward(ids []int, offset int) ([]float32, error) {
	f.pos += len(ids)
	logits := make([]float32, 8)
	logits[2] = 100
	return logits, nil
}

func (f *repeatForward) CacheLen() int { return f.pos }
func (f *repeatForward) Reset()        { f.pos = 0 }
func (f *repeatForward) Close() error  { return nil }

func newManager(t *testing.T, blobs store.BlobStore) *manager.Manager {
	t.Helper()
	return manager.New(manager.Config{
		Store:  blobs,
		Logger: zerolog.Nop(),
		Backend: func(*gguf.Container) (engine.Forward, error) {
			return &repeatForward{}, nil
		},
	})
}

func postBytes(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return data
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.Unmarshal(readAll(t, resp), out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
