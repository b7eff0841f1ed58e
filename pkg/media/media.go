package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"courierdb/pkg/models"
)

// Storage persists an uploaded attachment and returns the reference a
// message carries. Messages never embed bytes; the store only ever
// sees the returned models.Media value.
type Storage interface {
	Put(ctx context.Context, originalName, contentType string, r io.Reader, size int64) (models.Media, error)
}

// objectName builds a collision-free object key that still ends in the
// original file extension so content sniffing downstream keeps working.
func objectName(originalName string) string {
	ext := path.Ext(originalName)
	return uuid.NewString() + strings.ToLower(ext)
}

// kind maps a MIME content type onto the coarse media type stored on
// the message.
func kind(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "file"
	}
}

// Memory is an in-process Storage for tests and the dev server. Bytes
// live in a map keyed by object name.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, originalName, contentType string, r io.Reader, size int64) (models.Media, error) {
	if err := ctx.Err(); err != nil {
		return models.Media{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Media{}, fmt.Errorf("read upload: %w", err)
	}
	name := objectName(originalName)
	m.mu.Lock()
	m.objects[name] = data
	m.mu.Unlock()
	return models.Media{
		URL:          "mem://" + name,
		OriginalName: originalName,
		Type:         kind(contentType),
	}, nil
}

// Get returns stored bytes, for test assertions.
func (m *Memory) Get(url string) ([]byte, bool) {
	name := strings.TrimPrefix(url, "mem://")
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	return data, ok
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
