package handler

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docconv/internal/api/dto"
	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/service"
)

const (
	msgDuplicate       = "File already exists. Rename & re-upload if you want to process it again."
	msgTaskNotFound    = "Task ID not found"
	msgProcessingError = "Error occurred during file processing"
	msgFileNotFound    = "File not found after processing"
)

// Upload handles POST /upload
// Stores the multipart "file" and queues it for conversion
func (h *JobHandler) Upload(c *gin.Context) {
	var req dto.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Error("Invalid upload form", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_name is required",
		})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("Missing upload file", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read upload",
		})
		return
	}
	defer file.Close()

	job, err := h.service.SubmitUpload(c.Request.Context(), header.Filename, req.UserName, file)
	switch {
	case errors.Is(err, domain.ErrDuplicateID):
		c.JSON(http.StatusConflict, dto.UploadResponse{
			Message: msgDuplicate,
		})
		return
	case errors.Is(err, service.ErrInvalidFilename):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid filename",
		})
		return
	case err != nil:
		h.logger.Error("Failed to submit upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit file",
		})
		return
	}

	h.logger.Info("Upload accepted",
		slog.String("task_id", job.ID),
		slog.String("filename", header.Filename),
	)

	c.JSON(http.StatusOK, dto.UploadResponse{
		Message:  "success",
		TaskID:   job.ID,
		Filename: header.Filename,
	})
}

// Download handles GET /download/:task_id
// Returns the job status, plus the base64 document once it is available
func (h *JobHandler) Download(c *gin.Context) {
	taskID := c.Param("task_id")

	var req dto.DownloadRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	res, err := h.service.Status(c.Request.Context(), taskID, req.WaitForLLMProcessing)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": msgTaskNotFound,
		})
		return
	case errors.Is(err, service.ErrDocumentUnavailable):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": msgFileNotFound,
		})
		return
	case err != nil:
		h.logger.Error("Failed to get task status",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task status",
		})
		return
	}

	if res.Job.Status == domain.StatusError {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": msgProcessingError,
		})
		return
	}

	resp := dto.DownloadResponse{
		Message:  string(res.Job.Status),
		TaskID:   res.Job.ID,
		Filename: res.Filename,
	}
	if res.Ready {
		resp.Data = base64.StdEncoding.EncodeToString(res.Document)
	}

	c.JSON(http.StatusOK, resp)
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves the task record without the document
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.service.Get(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": msgTaskNotFound,
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs in submission order with an optional status filter
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	status := domain.Status(req.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	jobs, err := h.service.List(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs: jobResponse,
	})
}

func toJobDTO(job *domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:     job.ID,
		InputPath: job.InputPath,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}
	if job.OutputPath != nil {
		out.OutputPath = *job.OutputPath
	}
	if job.ContentArtifactPath != nil {
		out.ContentArtifactPath = *job.ContentArtifactPath
	}
	return out
}
