package bot

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/m3rciful/cargobot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

// Files resolves and downloads Telegram files. *tele.Bot implements it.
type Files interface {
	FileByID(fileID string) (tele.File, error)
	Download(file *tele.File, localFilename string) error
}

// MediaStore downloads inbound photos under dir/<kind>/.
type MediaStore struct {
	files    Files
	dir      string
	maxBytes int64
}

// NewMediaStore builds the photo store. maxBytes <= 0 disables the size check.
func NewMediaStore(files Files, dir string, maxBytes int64) *MediaStore {
	return &MediaStore{files: files, dir: dir, maxBytes: maxBytes}
}

// SavePhoto stores the photo and returns its path relative to the media dir.
func (m *MediaStore) SavePhoto(_ context.Context, kind conversation.PhotoKind, p conversation.Photo) (string, error) {
	f, err := m.files.FileByID(p.FileID)
	if err != nil {
		return "", fmt.Errorf("resolve photo: %w", err)
	}
	if m.maxBytes > 0 && f.FileSize > m.maxBytes {
		return "", fmt.Errorf("photo of %d bytes exceeds %d", f.FileSize, m.maxBytes)
	}
	ext := path.Ext(f.FilePath)
	if ext == "" {
		ext = ".jpg"
	}
	rel := path.Join(string(kind), uuid.NewString()+ext)
	abs := filepath.Join(m.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := m.files.Download(&f, abs); err != nil {
		return "", fmt.Errorf("download photo: %w", err)
	}
	return rel, nil
}

var _ conversation.PhotoStore = (*MediaStore)(nil)
