package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Grant kinds, also the URL segment each kind is served under.
const (
	KindRead   = "sign"
	KindUpload = "upload/sign"
)

// ObjectPrefix is the URL path the memory backend serves objects under.
const ObjectPrefix = "/storage/v1/object/"

// DefaultMaxObjectSize bounds a single upload to the memory backend.
const DefaultMaxObjectSize = 100 * 1024 * 1024

// ErrInvalidSignature is returned by Verify for a bad or expired grant.
var ErrInvalidSignature = errors.New("invalid or expired signature")

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore mints HMAC-signed URLs and serves them from process memory.
// It is used for local development and tests; objects do not survive a
// restart.
type MemoryStore struct {
	baseURL   string
	key       []byte
	uploadTTL time.Duration
	maxSize   int64
	now       func() time.Time

	mu      sync.RWMutex
	objects map[string]object
}

// NewMemoryStore creates a MemoryStore that signs with key.
func NewMemoryStore(baseURL string, key []byte, uploadTTL time.Duration) *MemoryStore {
	if uploadTTL <= 0 {
		uploadTTL = 2 * time.Hour
	}
	return &MemoryStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		key:       key,
		uploadTTL: uploadTTL,
		maxSize:   DefaultMaxObjectSize,
		now:       time.Now,
		objects:   make(map[string]object),
	}
}

// SignedURL returns a signed read URL for path.
func (m *MemoryStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	if path == "" {
		return "", errors.New("empty object path")
	}
	return m.sign(KindRead, path, ttl), nil
}

// SignedUploadURL returns a signed write URL for path.
func (m *MemoryStore) SignedUploadURL(_ context.Context, path string) (UploadURL, error) {
	if path == "" {
		return UploadURL{}, errors.New("empty object path")
	}
	raw := m.sign(KindUpload, path, m.uploadTTL)
	u, err := url.Parse(raw)
	if err != nil {
		return UploadURL{}, fmt.Errorf("parsing signed url: %w", err)
	}
	return UploadURL{URL: raw, Token: u.Query().Get("token")}, nil
}

// Verify checks a token minted for kind and path against its expiry. A read
// token never verifies as an upload grant and vice versa.
func (m *MemoryStore) Verify(kind, path, token string, expires int64) error {
	want := m.mac(kind, path, expires)
	if !hmac.Equal([]byte(want), []byte(token)) {
		return ErrInvalidSignature
	}
	if m.now().Unix() > expires {
		return ErrInvalidSignature
	}
	return nil
}

func (m *MemoryStore) sign(kind, path string, ttl time.Duration) string {
	expires := m.now().Add(ttl).Unix()
	q := url.Values{
		"token":   {m.mac(kind, path, expires)},
		"expires": {strconv.FormatInt(expires, 10)},
	}
	return fmt.Sprintf("%s%s%s/%s?%s", m.baseURL, ObjectPrefix, kind, escapePath(path), q.Encode())
}

func (m *MemoryStore) mac(kind, path string, expires int64) string {
	h := hmac.New(sha256.New, m.key)
	fmt.Fprintf(h, "%s\n%s\n%d", kind, path, expires)
	return hex.EncodeToString(h.Sum(nil))
}

// ServeHTTP serves signed URLs: GET under the read prefix returns the
// object, PUT or POST under the upload prefix stores the request body.
func (m *MemoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, ObjectPrefix)
	if !ok {
		http.NotFound(w, r)
		return
	}

	kind, path := "", ""
	switch {
	case strings.HasPrefix(rest, KindUpload+"/"):
		kind, path = KindUpload, strings.TrimPrefix(rest, KindUpload+"/")
	case strings.HasPrefix(rest, KindRead+"/"):
		kind, path = KindRead, strings.TrimPrefix(rest, KindRead+"/")
	default:
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil || path == "" || m.Verify(kind, path, q.Get("token"), expires) != nil {
		writeObjectError(w, http.StatusForbidden, ErrInvalidSignature.Error())
		return
	}

	switch {
	case kind == KindRead && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		m.serveObject(w, r, path)
	case kind == KindUpload && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		m.storeObject(w, r, path)
	default:
		w.Header().Set("Allow", allowedMethods(kind))
		writeObjectError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (m *MemoryStore) serveObject(w http.ResponseWriter, r *http.Request, path string) {
	m.mu.RLock()
	obj, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		writeObjectError(w, http.StatusNotFound, "object not found")
		return
	}

	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	http.ServeContent(w, r, path, obj.modified, bytes.NewReader(obj.data))
}

func (m *MemoryStore) storeObject(w http.ResponseWriter, r *http.Request, path string) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeObjectError(w, http.StatusRequestEntityTooLarge, "object too large")
			return
		}
		writeObjectError(w, http.StatusBadRequest, "reading body")
		return
	}

	m.mu.Lock()
	m.objects[path] = object{
		data:        data,
		contentType: r.Header.Get("Content-Type"),
		modified:    m.now(),
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"Key": path})
}

func allowedMethods(kind string) string {
	if kind == KindUpload {
		return "PUT, POST"
	}
	return "GET, HEAD"
}

func writeObjectError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ http.Handler = (*MemoryStore)(nil)
)
