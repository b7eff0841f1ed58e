package media

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	payload := []byte("png bytes")

	got, err := m.Put(context.Background(), "Cat Photo.PNG", "image/png", bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(got.URL, "mem://") {
		t.Fatalf("unexpected url %s", got.URL)
	}
	if !strings.HasSuffix(got.URL, ".png") {
		t.Fatalf("object name should keep a lowercased extension: %s", got.URL)
	}
	if got.OriginalName != "Cat Photo.PNG" || got.Type != "image" {
		t.Fatalf("unexpected media descriptor: %+v", got)
	}

	data, ok := m.Get(got.URL)
	if !ok || !bytes.Equal(data, payload) {
		t.Fatalf("stored bytes mismatch")
	}
	if m.Len() != 1 {
		t.Fatalf("expected one stored object, got %d", m.Len())
	}

	// same original name, distinct objects
	again, err := m.Put(context.Background(), "Cat Photo.PNG", "image/png", bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if again.URL == got.URL {
		t.Fatalf("object names must not collide")
	}
	if m.Len() != 2 {
		t.Fatalf("expected two stored objects, got %d", m.Len())
	}
}

func TestKindMapping(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":               "image",
		"video/mp4":                "video",
		"audio/ogg":                "audio",
		"application/pdf":          "file",
		"":                         "file",
		"text/plain; charset=utf8": "file",
	}
	for ct, want := range cases {
		if got := kind(ct); got != want {
			t.Fatalf("kind(%q) = %q, want %q", ct, got, want)
		}
	}
}
