package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// pngHeader is enough for content-type sniffing without a full image.
var pngHeader = []byte("\x89PNG\r\n\x1a\n" + "0000000000000000")

func TestFSRoundTrip(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "a.png", pngHeader, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, contentType, err := store.Get(ctx, "a.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Fatal("stored bytes differ")
	}
	if contentType != "image/png" {
		t.Fatalf("content type = %q", contentType)
	}

	if err := store.Delete(ctx, "a.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "a.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "a.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFSOverwrite(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "k", []byte("first"), "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "k", []byte("second"), "text/plain"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("data = %q", data)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/b", `a\b`, "..", "dir/../x"} {
		if err := store.Put(ctx, key, []byte("x"), "text/plain"); err == nil {
			t.Errorf("key %q accepted", key)
		}
		if _, _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Errorf("get %q: expected ErrNotFound, got %v", key, err)
		}
	}
}

func TestInMemoryIsolation(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	original := []byte("data")
	if err := store.Put(ctx, "k", original, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	original[0] = 'X'

	data, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("stored bytes aliased caller's slice: %q", data)
	}

	data[0] = 'Y'
	again, _, _ := store.Get(ctx, "k")
	if string(again) != "data" {
		t.Fatalf("returned bytes aliased store: %q", again)
	}
}
