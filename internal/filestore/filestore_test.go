package filestore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/feedhub/internal/config"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte("title,body\nA,B\n")
	require.NoError(t, store.Save(ctx, "run-1.csv", bytes.NewReader(payload), int64(len(payload))))

	rc, err := store.Open(ctx, "run-1.csv")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, "run-1.csv"))
	require.NoError(t, store.Delete(ctx, "run-1.csv"))
	_, err = store.Open(ctx, "run-1.csv")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStoreRejectsPathKeys(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Error(t, store.Save(context.Background(), "../escape", strings.NewReader("x"), 1))
	require.Error(t, store.Save(context.Background(), "", strings.NewReader("x"), 1))
}

func TestNewUnknownStore(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"bucket": "b"}})
	require.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StorePrefixesKeys(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newS3Store(fake, "uploads", "/imports/")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "run-1.csv", strings.NewReader("a,b"), 3))
	require.Contains(t, fake.objects, "uploads/imports/run-1.csv")

	rc, err := store.Open(ctx, "run-1.csv")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	require.Equal(t, "a,b", string(got))

	require.NoError(t, store.Delete(ctx, "run-1.csv"))
	require.Empty(t, fake.objects)
}

func TestBuildEndpoint(t *testing.T) {
	require.Equal(t, "https://s3.local", buildEndpoint("s3.local/", true))
	require.Equal(t, "http://minio:9000", buildEndpoint("minio:9000", false))
	require.Equal(t, "https://x.test", buildEndpoint("https://x.test", false))
}
