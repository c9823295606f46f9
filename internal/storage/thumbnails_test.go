package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore() (*ThumbnailStore, *fakeS3) {
	fake := &fakeS3{objects: map[string][]byte{}}
	return &ThumbnailStore{cfg: Config{Bucket: "b", Prefix: "/thumbs/"}, client: fake}, fake
}

func TestNewThumbnailStoreValidates(t *testing.T) {
	_, err := NewThumbnailStore(Config{})
	assert.Error(t, err)
	_, err = NewThumbnailStore(Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewThumbnailStore(Config{Bucket: "b", Region: "us-east-1"})
	assert.Error(t, err)

	store, err := NewThumbnailStore(Config{Bucket: "b", Region: "us-east-1", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "thumbnails", store.cfg.Prefix)
}

func TestThumbnailRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestStore()

	key, err := store.Put(ctx, 42, []byte("jpeg"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "thumbs/42/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	require.NoError(t, store.Delete(ctx, key))
	assert.Empty(t, fake.objects)

	_, err = store.Put(ctx, 42, nil)
	assert.Error(t, err)
}

func TestThumbnailGetRejectsOversizedObject(t *testing.T) {
	store, fake := newTestStore()
	fake.objects["big"] = make([]byte, maxThumbnailBytes+1)

	_, err := store.Get(context.Background(), "big")
	assert.Error(t, err)
}
