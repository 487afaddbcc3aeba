package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

// both backends must behave identically; run the shared suite over each
func backends(t *testing.T) map[string]BlobStore {
	t.Helper()
	dir := t.TempDir()
	sq, err := OpenSQLite(filepath.Join(dir, "blobs.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]BlobStore{
		"sqlite": sq,
		"memory": NewMemory(),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte{0x00, 0x01, 0xff, 0x00, 0x7f}
			if err := s.Save("weights", payload); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load("weights")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch: got %v want %v", got, payload)
			}
			n, err := s.SizeOf("weights")
			if err != nil {
				t.Fatalf("size: %v", err)
			}
			if n != len(payload) {
				t.Fatalf("size = %d, want %d", n, len(payload))
			}
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save("k", []byte("first")); err != nil {
				t.Fatal(err)
			}
			if err := s.Save("k", []byte("second")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Load("k")
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "second" {
				t.Fatalf("got %q, want last write", got)
			}
		})
	}
}

func TestLoadMissingKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load("absent"); !IsKeyNotFound(err) {
				t.Fatalf("expected key-not-found, got %v", err)
			}
			if _, err := s.SizeOf("absent"); !IsKeyNotFound(err) {
				t.Fatalf("expected key-not-found, got %v", err)
			}
		})
	}
}

func TestEmptyBlobRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save("empty", []byte{}); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.Load("empty")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty blob, got %d bytes", len(got))
			}
		})
	}
}

func TestKeysSorted(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"tokenizer", "model_weights", "aux"} {
				if err := s.Save(k, []byte{1}); err != nil {
					t.Fatal(err)
				}
			}
			keys, err := s.Keys()
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"aux", "model_weights", "tokenizer"}
			if len(keys) != len(want) {
				t.Fatalf("keys = %v, want %v", keys, want)
			}
			for i := range want {
				if keys[i] != want[i] {
					t.Fatalf("keys = %v, want %v", keys, want)
				}
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blobs.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save("model_weights", []byte("GGUF....")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Load("model_weights")
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if string(got) != "GGUF...." {
		t.Fatalf("data lost across reopen: %q", got)
	}
}
