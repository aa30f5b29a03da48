package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func fastRetryEngine(t *testing.T, url string) *HTTPEngine {
	t.Helper()
	eng, err := NewHTTPEngine(Options{URL: url, APIKey: "secret", MaxRetries: 3}, nil)
	require.NoError(t, err)
	eng.retry.BaseDelay = time.Millisecond
	eng.retry.MaxDelay = 5 * time.Millisecond
	return eng
}

func TestHTTPEngine_IndexDocument_Success(t *testing.T) {
	var gotName, gotContent, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/upload", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		gotName = header.Filename
		gotContent = string(data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"queued","track_id":"upload_123"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out := t.TempDir()
	path := createTestFile(t, dir, "report.pdf", "pdf bytes")

	eng := fastRetryEngine(t, srv.URL)
	resp, err := eng.IndexDocument(context.Background(), path, "report.pdf", out)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "upload_123", resp.TrackID)
	assert.Equal(t, "report.pdf", gotName)
	assert.Equal(t, "pdf bytes", gotContent)
	assert.Equal(t, "secret", gotKey)
	assert.FileExists(t, filepath.Join(out, "report.pdf"+ReceiptSuffix))
}

// TestHTTPEngine_IndexDocument_Duplicated treats an already indexed document as success
func TestHTTPEngine_IndexDocument_Duplicated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"duplicated","message":"already indexed"}`))
	}))
	defer srv.Close()

	path := createTestFile(t, t.TempDir(), "a.txt", "x")
	resp, err := fastRetryEngine(t, srv.URL).IndexDocument(context.Background(), path, "", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestHTTPEngine_IndexDocument_FailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failure","message":"unsupported file type"}`))
	}))
	defer srv.Close()

	path := createTestFile(t, t.TempDir(), "a.bin", "x")
	out := t.TempDir()
	resp, err := fastRetryEngine(t, srv.URL).IndexDocument(context.Background(), path, "a.bin", out)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, "unsupported file type", resp.Error)
	assert.NoFileExists(t, filepath.Join(out, "a.bin"+ReceiptSuffix))
}

func TestHTTPEngine_ReceiptStaysInOutputDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	base := t.TempDir()
	out := filepath.Join(base, "out")
	require.NoError(t, os.Mkdir(out, 0755))
	path := createTestFile(t, t.TempDir(), "doc.pdf", "x")

	resp, err := fastRetryEngine(t, srv.URL).IndexDocument(context.Background(), path, "../escaped", out)
	require.NoError(t, err)
	require.True(t, resp.Success)

	assert.NoFileExists(t, filepath.Join(base, "escaped"+ReceiptSuffix))
	assert.FileExists(t, filepath.Join(out, "escaped"+ReceiptSuffix))
}

func TestReceiptName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report.pdf"},
		{"parent traversal", "../escaped", "escaped"},
		{"nested", "a/b/report.pdf", "report.pdf"},
		{"absolute", "/etc/passwd", "passwd"},
		{"dot dot", "..", "doc.pdf"},
		{"separator only", "/", "doc.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, receiptName("/data/doc.pdf", tt.in))
		})
	}
}

// TestHTTPEngine_RetriesServerErrors verifies 5xx responses are retried
func TestHTTPEngine_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	path := createTestFile(t, t.TempDir(), "a.txt", "x")
	resp, err := fastRetryEngine(t, srv.URL).IndexDocument(context.Background(), path, "a.txt", "")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), calls.Load())
}

// TestHTTPEngine_ClientErrorNotRetried verifies 4xx responses fail immediately
func TestHTTPEngine_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := createTestFile(t, t.TempDir(), "a.txt", "x")
	_, err := fastRetryEngine(t, srv.URL).IndexDocument(context.Background(), path, "a.txt", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api error 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPEngine_MissingFile(t *testing.T) {
	eng := fastRetryEngine(t, "http://127.0.0.1:1")
	_, err := eng.IndexDocument(context.Background(), "/does/not/exist.pdf", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open document")
}

func TestHTTPEngine_Health(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	assert.NoError(t, fastRetryEngine(t, healthy.URL).Health(context.Background()))

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sick.Close()

	assert.Error(t, fastRetryEngine(t, sick.URL).Health(context.Background()))
}

func TestNewHTTPEngine_RequiresURL(t *testing.T) {
	_, err := NewHTTPEngine(Options{}, nil)
	assert.ErrorIs(t, err, ErrEngineURLRequired)
}

func TestNew_Kinds(t *testing.T) {
	eng, err := New(Options{URL: DefaultURL}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPEngine{}, eng)

	eng, err = New(Options{Kind: KindCommand, Command: []string{"true"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CommandEngine{}, eng)

	_, err = New(Options{Kind: "grpc"}, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}
