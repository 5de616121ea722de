package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    int
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = fakeObject{body: body, metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(obj.body)),
		Metadata: obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewS3Store(client, "bucket", WithS3Prefix("app/"))

	require.NoError(t, store.Save(ctx, "s1", []byte("data"), time.Now().Add(time.Hour)))
	obj, ok := client.objects["bucket/app/s1.json"]
	require.True(t, ok, "object key uses prefix")
	assert.Contains(t, obj.metadata, expiresMetadata)

	data, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	data, err = store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Touch(ctx, "s1", time.Now().Add(-time.Second)))
	data, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, data, "expired object is not returned")

	require.NoError(t, store.Touch(ctx, "missing", time.Now().Add(time.Hour)))
	assert.Equal(t, 2, client.puts, "touching a missing session writes nothing")

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.Empty(t, client.objects)
}

func TestS3Store_Errors(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	client.getErr = errors.New("access denied")
	store := NewS3Store(client, "bucket")

	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, client.getErr)
	assert.ErrorContains(t, err, "session: s3 get s1")

	require.NoError(t, store.Close())
	var closed ErrStoreClosed
	assert.ErrorAs(t, store.Save(ctx, "s1", nil, time.Now()), &closed)
	assert.ErrorAs(t, store.Delete(ctx, "s1"), &closed)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*S3Store)(nil)
	_ S3API = (*s3.Client)(nil)
)
