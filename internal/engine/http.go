package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dshills/docindex-mcp/internal/logging"
)

const (
	// DefaultURL is the default address of the indexing server
	DefaultURL = "http://localhost:9621"
	// DefaultTimeout bounds a single upload request
	DefaultTimeout = 60 * time.Second

	uploadPath = "/documents/upload"
	healthPath = "/health"

	// ReceiptSuffix is appended to the document name for the receipt written
	// into the output directory
	ReceiptSuffix = ".index.json"

	maxErrorBody = 4096
)

// ErrEngineURLRequired is returned when the HTTP engine has no base URL
var ErrEngineURLRequired = errors.New("engine url is required")

// HTTPEngine uploads documents to a LightRAG-compatible indexing server
type HTTPEngine struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *log.Logger
}

// uploadResponse is the server's JSON answer to an upload
type uploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TrackID string `json:"track_id"`
}

// receipt is written into the output directory for every accepted document
type receipt struct {
	Document  string    `json:"document"`
	Path      string    `json:"path"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	TrackID   string    `json:"track_id,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// NewHTTPEngine creates an engine talking to opts.URL
func NewHTTPEngine(opts Options, logger *log.Logger) (*HTTPEngine, error) {
	if opts.URL == "" {
		return nil, ErrEngineURLRequired
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	retry := DefaultRetryConfig()
	if opts.MaxRetries > 0 {
		retry.MaxRetries = opts.MaxRetries
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &HTTPEngine{
		baseURL: strings.TrimRight(opts.URL, "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry,
		logger:  logging.OrDiscard(logger),
	}, nil
}

// IndexDocument uploads the file at path. Transport errors and 5xx responses
// are retried; a "failure" answer from the server is reported in the Response.
func (e *HTTPEngine) IndexDocument(ctx context.Context, path, name, outputDir string) (*Response, error) {
	if name == "" {
		name = filepath.Base(path)
	}

	resp, err := retryWithBackoff(ctx, e.retry, func() (*uploadResponse, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, permanent(err)
			}
		}
		return e.upload(ctx, path, name)
	})
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "success", "duplicated":
	default:
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("engine returned status %q", resp.Status)
		}
		return &Response{Success: false, Error: msg, TrackID: resp.TrackID}, nil
	}

	if outputDir != "" {
		if err := writeReceipt(outputDir, path, name, resp); err != nil {
			e.logger.Warn("failed to write index receipt", "document", name, "err", err)
		}
	}

	return &Response{Success: true, TrackID: resp.TrackID}, nil
}

// upload performs a single multipart upload attempt
func (e *HTTPEngine) upload(ctx context.Context, path, name string) (*uploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, permanent(fmt.Errorf("failed to open document: %w", err))
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+uploadPath, pr)
	if err != nil {
		_ = pr.Close()
		return nil, permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("X-API-Key", e.apiKey)
	}

	httpResp, err := e.client.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("api error %d: %s", httpResp.StatusCode, truncateBody(body))
		if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, apiErr
		}
		return nil, permanent(apiErr)
	}

	var out uploadResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return nil, permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &out, nil
}

// Health checks that the indexing server answers
func (e *HTTPEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	if e.apiKey != "" {
		req.Header.Set("X-API-Key", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned %d", resp.StatusCode)
	}
	return nil
}

// receiptName reduces name to a single path element so the receipt stays
// inside the output directory
func receiptName(path, name string) string {
	base := filepath.Base(filepath.Clean(name))
	switch base {
	case ".", "..", string(filepath.Separator):
		return filepath.Base(path)
	}
	return base
}

func writeReceipt(outputDir, path, name string, resp *uploadResponse) error {
	data, err := sonic.Marshal(receipt{
		Document:  name,
		Path:      path,
		Status:    resp.Status,
		Message:   resp.Message,
		TrackID:   resp.TrackID,
		IndexedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, receiptName(path, name)+ReceiptSuffix), data, 0644)
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
