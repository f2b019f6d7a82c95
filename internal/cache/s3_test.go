package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"storyfeed/internal/feed"
)

func typeName(v any) string { return fmt.Sprintf("%T", v) }

// fakeS3 serves path-style GetObject and PutObject for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + f.bucket + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.Error(w, "no such bucket", http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Cache(t *testing.T) (*S3Cache, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "feeds", objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewS3Cache(context.Background(), S3Options{
		Bucket:          "feeds",
		Prefix:          "device-1",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Cache() error = %v", err)
	}
	return c, fake
}

func TestS3Cache(t *testing.T) {
	testCacheContract(t, func(t *testing.T) feed.Cache {
		c, _ := newTestS3Cache(t)
		return c
	})

	t.Run("object key uses prefix", func(t *testing.T) {
		c, fake := newTestS3Cache(t)
		put(t, c, "bookmarks", `["s1"]`)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		if got := string(fake.objects["device-1/bookmarks.json"]); got != `["s1"]` {
			t.Errorf("stored object = %q, objects = %v", got, fake.objects)
		}
	})
}

func TestNewS3Cache_RequiresBucket(t *testing.T) {
	if _, err := NewS3Cache(context.Background(), S3Options{}); err == nil {
		t.Error("NewS3Cache() without bucket succeeded, want error")
	}
}
