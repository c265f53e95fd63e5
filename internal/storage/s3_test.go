package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 is a tiny in-memory subset of the S3 REST API, enough to exercise
// the provider without network access.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]string
}

func (m *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Path style: /bucket/key
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}}), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		m.objects[key] = body
		m.meta[key] = req.Header.Get("X-Amz-Meta-Sha256")
		return respond(http.StatusOK, nil, http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodGet, http.MethodHead:
		body, ok := m.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, http.Header{}), nil
		}
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {"text/html"},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			body = nil
		}
		return respond(http.StatusOK, body, h), nil
	case http.MethodDelete:
		delete(m.objects, key)
		return respond(http.StatusNoContent, nil, http.Header{}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func respond(status int, body []byte, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body))}
}

func testS3(t *testing.T, prefix string) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte), meta: make(map[string]string)}
	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		Credentials:                credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		HTTPClient:                 &http.Client{Transport: fake},
		UsePathStyle:               true,
		BaseEndpoint:               aws.String("https://mock.s3.local"),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		RetryMaxAttempts:           1,
	})
	return newS3(client, "wikis", prefix), fake
}

func TestS3_WriteReadList(t *testing.T) {
	s, fake := testS3(t, "sites")
	ctx := context.Background()

	if err := s.Write(ctx, "foo.html", []byte("<html>foo</html>")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, ok := fake.objects["sites/foo.html"]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}
	if fake.meta["sites/foo.html"] == "" {
		t.Error("sha256 metadata not sent")
	}
	fake.objects["sites/notes.txt"] = []byte("ignored")

	got, err := s.Read(ctx, "foo.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "<html>foo</html>" {
		t.Errorf("Read = %q", got)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Key != "foo.html" || items[0].Size != int64(len("<html>foo</html>")) {
		t.Errorf("List = %+v", items)
	}
}

func TestS3_MissingKeys(t *testing.T) {
	s, _ := testS3(t, "")
	ctx := context.Background()

	if _, err := s.Read(ctx, "nope.html"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read err = %v, want os.ErrNotExist", err)
	}
	if err := s.Delete(ctx, "nope.html"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Delete err = %v, want os.ErrNotExist", err)
	}
}

func TestS3_Delete(t *testing.T) {
	s, fake := testS3(t, "")
	ctx := context.Background()
	_ = s.Write(ctx, "bye.html", []byte("x"))
	if err := s.Delete(ctx, "bye.html"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Errorf("objects left: %v", fake.objects)
	}
}

func TestS3_KeysCannotEscapePrefix(t *testing.T) {
	s, _ := testS3(t, "sites")
	k, err := s.objectKey("../../other/x.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(k, "sites/") {
		t.Errorf("key = %q escapes prefix", k)
	}
	if _, err := s.objectKey(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}
}
