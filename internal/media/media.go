// Package media uploads profile images to object storage and hands back the
// stable URL recorded on the user.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	FolderAvatars = "avatars"
	FolderCovers  = "covers"
)

// ErrEmptyFile is returned when an upload carries no bytes.
var ErrEmptyFile = errors.New("empty file")

// ObjectStore is the subset of object storage the uploader needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// File is an uploaded file held in memory.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Object identifies an uploaded file.
type Object struct {
	Key string
	URL string
}

// Uploader stores files under random keys.
type Uploader struct {
	store ObjectStore
	now   func() time.Time
}

func NewUploader(store ObjectStore) *Uploader {
	return &Uploader{store: store, now: time.Now}
}

// Upload stores f under folder and returns its key and public URL.
func (u *Uploader) Upload(ctx context.Context, folder string, f File) (Object, error) {
	if len(f.Data) == 0 {
		return Object{}, ErrEmptyFile
	}

	contentType := strings.TrimSpace(f.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(f.Data)
	}

	key := u.objectKey(folder, f.Filename)
	if err := u.store.Put(ctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), contentType); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	return Object{Key: key, URL: u.store.URL(key)}, nil
}

// Remove deletes a previously uploaded object.
func (u *Uploader) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return u.store.Delete(ctx, key)
}

func (u *Uploader) objectKey(folder, filename string) string {
	d := u.now().UTC()
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("%s/%d/%02d/%s%s", folder, d.Year(), d.Month(), uuid.NewString(), ext)
}
