// Package s3test serves an in-memory S3 endpoint covering the object calls
// the storage clients make: put, head, get and a V2 listing.
package s3test

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const metaPrefix = "X-Amz-Meta-"

type Object struct {
	Body         []byte
	ContentType  string
	Metadata     map[string]string // canonical X-Amz-Meta-* header names
	ETag         string
	LastModified time.Time
}

type Server struct {
	*httptest.Server

	mu      sync.Mutex
	objects map[string]Object // keyed by "bucket/key"
}

// NewServer starts a TLS server that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{objects: map[string]Object{}}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Server.Close)
	return s
}

// MinioClient returns a client for the server's endpoint.
func (s *Server) MinioClient(t testing.TB) *minio.Client {
	t.Helper()
	cl, err := minio.New(strings.TrimPrefix(s.URL, "https://"), &minio.Options{
		Creds:     credentials.NewStaticV4("nbnd-test", "nbnd-test-secret", ""),
		Secure:    true,
		Region:    "us-east-1",
		Transport: s.Client().Transport,
	})
	if err != nil {
		t.Fatalf("fail to create minio client: %v", err)
	}
	return cl
}

// Put stores an object directly, bypassing the HTTP API.
func (s *Server) Put(bucket, key string, body []byte, contentType string) {
	s.store(bucket, key, body, contentType, nil)
}

// Object returns a stored object.
func (s *Server) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	return obj, ok
}

func (s *Server) store(bucket, key string, body []byte, contentType string, metadata map[string]string) Object {
	sum := md5.Sum(body)
	obj := Object{
		Body:         body,
		ContentType:  contentType,
		Metadata:     metadata,
		ETag:         `"` + hex.EncodeToString(sum[:]) + `"`,
		LastModified: time.Now().UTC().Truncate(time.Second),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = obj
	return obj
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	switch {
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		s.list(w, bucket, r.URL.Query().Get("prefix"), r.URL.Query().Get("delimiter"))
	case key != "" && r.Method == http.MethodPut:
		s.put(w, r, bucket, key)
	case key != "" && (r.Method == http.MethodHead || r.Method == http.MethodGet):
		obj, ok := s.Object(bucket, key)
		if !ok {
			writeError(w, r, http.StatusNotFound, "NoSuchKey")
			return
		}
		h := w.Header()
		h.Set("ETag", obj.ETag)
		h.Set("Content-Type", obj.ContentType)
		for k, v := range obj.Metadata {
			h.Set(k, v)
		}
		http.ServeContent(w, r, key, obj.LastModified, bytes.NewReader(obj.Body))
	default:
		writeError(w, r, http.StatusNotImplemented, "NotImplemented")
	}
}

func (s *Server) put(w http.ResponseWriter, r *http.Request, bucket, key string) {
	var (
		body []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") || strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
		body, err = decodeChunked(r.Body)
	} else {
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "IncompleteBody")
		return
	}

	metadata := map[string]string{}
	for k, v := range r.Header {
		if strings.HasPrefix(k, metaPrefix) && len(v) > 0 {
			metadata[k] = v[0]
		}
	}

	obj := s.store(bucket, key, body, r.Header.Get("Content-Type"), metadata)
	w.Header().Set("ETag", obj.ETag)
	w.WriteHeader(http.StatusOK)
}

// decodeChunked strips the aws-chunked framing minio-go uses for streaming
// signatures. Chunk signatures and trailers are not verified.
func decodeChunked(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk header %q: %w", line, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

type listBucketResult struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	KeyCount       int            `xml:"KeyCount"`
	MaxKeys        int            `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []listObject   `xml:"Contents"`
	CommonPrefixes []commonPrefix `xml:"CommonPrefixes"`
}

type listObject struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int    `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func (s *Server) list(w http.ResponseWriter, bucket, prefix, delimiter string) {
	result := listBucketResult{Name: bucket, Prefix: prefix, Delimiter: delimiter, MaxKeys: 1000}
	seen := map[string]bool{}

	s.mu.Lock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if b, key, _ := strings.Cut(k, "/"); b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		rest := key[len(prefix):]
		if i := strings.Index(rest, delimiter); delimiter != "" && i >= 0 {
			p := prefix + rest[:i+len(delimiter)]
			if !seen[p] {
				seen[p] = true
				result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{p})
			}
			continue
		}
		obj := s.objects[bucket+"/"+key]
		result.Contents = append(result.Contents, listObject{
			Key:          key,
			LastModified: obj.LastModified.Format("2006-01-02T15:04:05.000Z"),
			ETag:         obj.ETag,
			Size:         len(obj.Body),
			StorageClass: "STANDARD",
		})
	}
	s.mu.Unlock()

	result.KeyCount = len(result.Contents) + len(result.CommonPrefixes)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(result)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	fmt.Fprintf(w, "%s<Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource></Error>", xml.Header, code, http.StatusText(status), r.URL.Path)
}
