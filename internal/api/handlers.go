package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/jobs"
	"github.com/dshills/docindex-mcp/internal/staging"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// AcceptedResponse is returned by every indexing route
type AcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// FolderRequest is the body of POST /index-folder
type FolderRequest struct {
	FolderPath     string   `json:"folder_path"`
	Recursive      *bool    `json:"recursive"` // default true
	FileExtensions []string `json:"file_extensions"`
}

// JobsResponse is the body of GET /jobs
type JobsResponse struct {
	Jobs []*types.Job `json:"jobs"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Engine     string `json:"engine"`
	ActiveJobs int    `json:"active_jobs"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

// handleIndexDocument accepts one uploaded file in the "file" field
func (s *Server) handleIndexDocument(c *gin.Context) {
	if !s.limitBody(c) {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		s.rejectForm(c, err, "a file is required in the 'file' field")
		return
	}

	upload, err := readUpload(fh)
	if err != nil {
		s.rejectForm(c, err, "failed to read uploaded file")
		return
	}
	name, err := staging.CleanName(upload.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	id := s.jobs.Dispatch(c.Request.Context(), types.JobKindUpload, name, func(ctx context.Context) (jobs.Result, error) {
		result, err := s.indexer.IndexUpload(ctx, upload)
		return jobs.Result{File: result}, err
	})

	c.JSON(http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		Message: fmt.Sprintf("Document %s accepted for indexing", name),
		JobID:   id,
	})
}

// handleIndexFolder accepts a folder on the server's filesystem
func (s *Server) handleIndexFolder(c *gin.Context) {
	var body FolderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return
	}
	body.FolderPath = strings.TrimSpace(body.FolderPath)
	if body.FolderPath == "" {
		c.JSON(http.StatusBadRequest, errorBody("folder_path is required"))
		return
	}

	req := indexer.FolderRequest{
		RootPath:   body.FolderPath,
		Recursive:  body.Recursive == nil || *body.Recursive,
		Extensions: body.FileExtensions,
	}
	id := s.jobs.Dispatch(c.Request.Context(), types.JobKindFolder, req.RootPath, func(ctx context.Context) (jobs.Result, error) {
		return jobs.Result{Aggregate: s.indexer.IndexFolder(ctx, req)}, nil
	})

	c.JSON(http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		Message: fmt.Sprintf("Folder %s accepted for indexing", req.RootPath),
		JobID:   id,
	})
}

// handleIndexBatch accepts any number of files in repeated "files" fields
func (s *Server) handleIndexBatch(c *gin.Context) {
	if !s.limitBody(c) {
		return
	}

	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.rejectForm(c, err, "invalid multipart form")
		return
	}
	var headers []*multipart.FileHeader
	if form != nil {
		headers = form.File["files"]
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, errorBody(types.ErrNoInputs.Error()))
		return
	}

	uploads := make([]indexer.Upload, 0, len(headers))
	for _, fh := range headers {
		upload, err := readUpload(fh)
		if err != nil {
			s.rejectForm(c, err, "failed to read uploaded file")
			return
		}
		uploads = append(uploads, upload)
	}

	target := fmt.Sprintf("%d file(s)", len(uploads))
	id := s.jobs.Dispatch(c.Request.Context(), types.JobKindBatch, target, func(ctx context.Context) (jobs.Result, error) {
		result, err := s.indexer.IndexBatch(ctx, uploads)
		return jobs.Result{Aggregate: result}, err
	})

	c.JSON(http.StatusAccepted, AcceptedResponse{
		Status:  "accepted",
		Message: fmt.Sprintf("Batch of %d file(s) accepted for indexing", len(uploads)),
		JobID:   id,
	})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobs.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, errorBody(err.Error()))
		return
	}
	if err != nil {
		s.logger.Error("failed to load job", "job", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, errorBody("failed to load job"))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, errorBody("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	list, err := s.jobs.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list jobs", "err", err)
		c.JSON(http.StatusInternalServerError, errorBody("failed to list jobs"))
		return
	}
	if list == nil {
		list = []*types.Job{}
	}
	c.JSON(http.StatusOK, JobsResponse{Jobs: list})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Engine:     s.opts.Health(c.Request.Context()),
		ActiveJobs: s.jobs.Active(),
	})
}

// limitBody caps the request body. Requests that announce a larger body are
// rejected before anything is read.
func (s *Server) limitBody(c *gin.Context) bool {
	if c.Request.ContentLength > s.opts.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody(tooLargeMessage(s.opts.MaxUploadBytes)))
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	return true
}

// rejectForm answers 413 when the body exceeded the limit and 400 otherwise
func (s *Server) rejectForm(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody(tooLargeMessage(s.opts.MaxUploadBytes)))
		return
	}
	s.logger.Debug("rejected upload", "err", err)
	c.JSON(http.StatusBadRequest, errorBody(msg))
}

func tooLargeMessage(limit int64) string {
	return fmt.Sprintf("upload exceeds the %d MB limit", limit>>20)
}

// readUpload copies an uploaded part into memory so the job can outlive the
// request
func readUpload(fh *multipart.FileHeader) (indexer.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return indexer.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return indexer.Upload{}, err
	}
	return indexer.Upload{Name: fh.Filename, Content: bytes.NewReader(data)}, nil
}
