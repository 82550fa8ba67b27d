package media

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStore) URL(key string) string { return "https://cdn.test/" + key }

func TestUpload(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store)
	u.now = func() time.Time { return time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC) }

	obj, err := u.Upload(context.Background(), FolderAvatars, File{
		Filename: "Me.PNG",
		Data:     []byte("\x89PNG\r\n\x1a\n0000"),
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^avatars/2026/03/[0-9a-f-]{36}\.png$`), obj.Key)
	assert.Equal(t, "https://cdn.test/"+obj.Key, obj.URL)
	assert.Equal(t, "image/png", store.contentTypes[obj.Key])
}

func TestUpload_KeepsDeclaredContentType(t *testing.T) {
	store := newMemStore()
	obj, err := NewUploader(store).Upload(context.Background(), FolderCovers, File{
		Filename:    "cover.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("data"),
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", store.contentTypes[obj.Key])
}

func TestUpload_Errors(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store)

	_, err := u.Upload(context.Background(), FolderAvatars, File{Filename: "a.png"})
	assert.ErrorIs(t, err, ErrEmptyFile)

	store.putErr = errors.New("bucket gone")
	_, err = u.Upload(context.Background(), FolderAvatars, File{Filename: "a.png", Data: []byte("x")})
	assert.ErrorContains(t, err, "bucket gone")
}

func TestRemove(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store)

	obj, err := u.Upload(context.Background(), FolderAvatars, File{Filename: "a.png", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, u.Remove(context.Background(), obj.Key))
	assert.Empty(t, store.objects)
	assert.NoError(t, u.Remove(context.Background(), ""))
}

func TestObjectKey_DropsOddExtensions(t *testing.T) {
	u := NewUploader(newMemStore())
	assert.NotContains(t, u.objectKey(FolderAvatars, `C:\pics\a.verylongextension`), ".verylong")
	assert.Regexp(t, `\.jpg$`, u.objectKey(FolderAvatars, `C:\pics\a.jpg`))
}
