package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fieldcore/internal/infra/blob/core"
)

type stubObject struct {
	data         []byte
	contentType  string
	metadata     map[string]string
	lastModified time.Time
}

type stubClient struct {
	objects map[string]stubObject
	putErr  error
}

func newStubClient() *stubClient {
	return &stubClient{objects: map[string]stubObject{}}
}

func (c *stubClient) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if c.putErr != nil {
		return nil, c.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.objects[aws.ToString(in.Key)] = stubObject{
		data:         data,
		contentType:  aws.ToString(in.ContentType),
		metadata:     in.Metadata,
		lastModified: time.Now().UTC(),
	}
	return &awss3.PutObjectOutput{}, nil
}

func (c *stubClient) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(in.Key))
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

func (c *stubClient) HeadObject(_ context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	obj, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NotFound: %s", aws.ToString(in.Key))
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"stub-etag"`),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

func (c *stubClient) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	delete(c.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (c *stubClient) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	var contents []types.Object
	for key, obj := range c.objects {
		if prefix := aws.ToString(in.Prefix); prefix != "" && len(key) >= len(prefix) && key[:len(prefix)] != prefix {
			continue
		}
		contents = append(contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.lastModified),
		})
	}
	return &awss3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func newStubStore() (*Store, *stubClient) {
	client := newStubClient()
	return &Store{client: client, bucket: "field-exports"}, client
}

func TestPutThenHead(t *testing.T) {
	store, _ := newStubStore()
	ctx := context.Background()

	info, err := store.Put(ctx, "exports/specimens-export-2026-07-14.json", bytes.NewReader([]byte("[]")), core.PutOptions{
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ContentType != "application/json" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.ETag != "stub-etag" {
		t.Fatalf("etag quotes not trimmed: %q", info.ETag)
	}
}

func TestPutReplacesExistingObject(t *testing.T) {
	store, client := newStubStore()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("one")), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("twotwo")), core.PutOptions{}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	if string(client.objects["k"].data) != "twotwo" {
		t.Fatalf("object not replaced: %q", client.objects["k"].data)
	}
}

func TestGetStreamsBody(t *testing.T) {
	store, _ := newStubStore()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("payload")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" || info.Size != 7 {
		t.Fatalf("unexpected body %q size %d", body, info.Size)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store, _ := newStubStore()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	existed, err := store.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "k")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
}

func TestListSortedByKey(t *testing.T) {
	store, _ := newStubStore()
	ctx := context.Background()
	for _, key := range []string{"b", "a", "c"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 || infos[0].Key != "a" || infos[1].Key != "b" || infos[2].Key != "c" {
		t.Fatalf("unexpected order: %+v", infos)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected bucket requirement error")
	}
}
