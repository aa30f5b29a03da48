package app

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"

	"github.com/dshills/docindex-mcp/internal/api"
	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/engine"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// fakeRAGServer answers like a LightRAG upload endpoint. Documents whose name
// starts with "bad" are rejected.
type fakeRAGServer struct {
	*httptest.Server
	uploads  atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeRAGServer(delay time.Duration) *fakeRAGServer {
	f := &fakeRAGServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/documents/upload", func(w http.ResponseWriter, r *http.Request) {
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		f.uploads.Add(1)
		time.Sleep(delay)

		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(header.Filename, "bad") {
			_, _ = w.Write([]byte(`{"status":"failure","message":"unsupported file type"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","message":"queued","track_id":"track-` + header.Filename + `"}`))
	})
	f.Server = httptest.NewServer(mux)
	return f
}

// IntegrationTestSuite drives the HTTP API against a fake indexing server
type IntegrationTestSuite struct {
	suite.Suite
	rag    *fakeRAGServer
	cfg    *config.Config
	app    *App
	client *httptest.Server
}

func (s *IntegrationTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.rag = newFakeRAGServer(20 * time.Millisecond)

	dir := s.T().TempDir()
	cfg := config.NewConfig()
	cfg.WorkingDir = filepath.Join(dir, "work")
	cfg.StagingDir = filepath.Join(dir, "staging")
	cfg.Engine.URL = s.rag.URL
	cfg.Indexing.MaxWorkers = 2
	s.cfg = cfg

	s.build()
}

func (s *IntegrationTestSuite) build() {
	a, err := Build(s.cfg, nil)
	s.Require().NoError(err)
	s.app = a

	srv := api.NewServer(a.Indexer, a.Jobs, api.Options{
		MaxUploadBytes: s.cfg.MaxUploadBytes(),
		Health:         a.EngineHealth,
	}, nil)
	s.client = httptest.NewServer(srv.Handler())
}

func (s *IntegrationTestSuite) TearDownTest() {
	s.client.Close()
	_ = s.app.Close()
	s.rag.Close()
}

func (s *IntegrationTestSuite) postJSON(path, body string) api.AcceptedResponse {
	resp, err := http.Post(s.client.URL+path, "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)

	var accepted api.AcceptedResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&accepted))
	return accepted
}

func (s *IntegrationTestSuite) job(id string) *types.Job {
	resp, err := http.Get(s.client.URL + "/api/v1/jobs/" + id)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var job types.Job
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&job))
	return &job
}

func (s *IntegrationTestSuite) writeDocs(names ...string) string {
	dir := s.T().TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0755))
		s.Require().NoError(os.WriteFile(path, []byte("content of "+name), 0644))
	}
	return dir
}

func (s *IntegrationTestSuite) TestFolderJob() {
	dir := s.writeDocs("a.pdf", "b.docx", "bad.pdf", "nested/c.md", ".hidden.pdf", "image.raw")

	accepted := s.postJSON("/api/v1/index-folder", `{"folder_path": "`+dir+`"}`)
	s.app.Jobs.Wait()

	job := s.job(accepted.JobID)
	s.Equal(types.JobCompleted, job.State)
	s.Require().NotNil(job.Aggregate)
	result := job.Aggregate

	s.Equal(types.StatusPartial, result.Status)
	s.Equal(types.Counts{Total: 4, Processed: 3, Failed: 1}, result.Counts)
	s.NoError(result.Validate())
	s.Require().Len(result.Outcomes, 4)
	for _, o := range result.Outcomes {
		if o.Name == "bad.pdf" {
			s.Equal(types.StatusFailed, o.Status)
			s.Equal("unsupported file type", o.Error)
		} else {
			s.Equal(types.StatusSuccess, o.Status, o.Name)
		}
	}

	s.EqualValues(4, s.rag.uploads.Load())
	s.LessOrEqual(s.rag.peak.Load(), int32(2), "at most max_workers uploads at once")

	output := s.cfg.ResolvedOutputDir()
	s.FileExists(filepath.Join(output, "a.pdf"+engine.ReceiptSuffix))
	s.NoFileExists(filepath.Join(output, "bad.pdf"+engine.ReceiptSuffix))
}

func (s *IntegrationTestSuite) TestBatchJobCleansStaging() {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"one.pdf", "two.pdf", "bad.pdf"} {
		part, err := mw.CreateFormFile("files", name)
		s.Require().NoError(err)
		_, err = part.Write([]byte(name))
		s.Require().NoError(err)
	}
	s.Require().NoError(mw.Close())

	resp, err := http.Post(s.client.URL+"/api/v1/index-batch", mw.FormDataContentType(), &body)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	var accepted api.AcceptedResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&accepted))

	s.app.Jobs.Wait()

	job := s.job(accepted.JobID)
	s.Require().NotNil(job.Aggregate)
	s.Equal(types.StatusPartial, job.Aggregate.Status)
	s.Equal(2, job.Aggregate.Counts.Processed)

	entries, err := os.ReadDir(s.cfg.StagingDir)
	s.Require().NoError(err)
	s.Empty(entries, "staging areas must be removed")
}

// TestJobsSurviveRestart verifies completed jobs are served from the database
// by a freshly built application
func (s *IntegrationTestSuite) TestJobsSurviveRestart() {
	dir := s.writeDocs("a.pdf", "b.pdf")
	accepted := s.postJSON("/api/v1/index-folder", `{"folder_path": "`+dir+`", "recursive": false}`)
	s.app.Jobs.Wait()

	s.client.Close()
	s.Require().NoError(s.app.Close())
	s.build()

	job := s.job(accepted.JobID)
	s.Equal(types.JobCompleted, job.State)
	s.Require().NotNil(job.Aggregate)
	s.Equal(types.StatusSuccess, job.Aggregate.Status)
	s.Len(job.Aggregate.Outcomes, 2)
	s.False(job.Aggregate.Recursive)
}

func (s *IntegrationTestSuite) TestHealthReportsEngine() {
	resp, err := http.Get(s.client.URL + "/api/v1/health")
	s.Require().NoError(err)
	defer resp.Body.Close()

	var health api.HealthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&health))
	s.Equal("reachable", health.Engine)
}

func (s *IntegrationTestSuite) TestMissingFolderJobFails() {
	missing := filepath.Join(s.T().TempDir(), "gone")
	accepted := s.postJSON("/api/v1/index-folder", `{"folder_path": "`+missing+`"}`)
	s.app.Jobs.Wait()

	job := s.job(accepted.JobID)
	s.Require().NotNil(job.Aggregate)
	s.Equal(types.StatusFailed, job.Aggregate.Status)
	s.Contains(job.Aggregate.Error, missing)
	s.EqualValues(0, s.rag.uploads.Load())
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
