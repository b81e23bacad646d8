package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cardscope/gradepipe/internal/api/dto"
	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// CreateEstimate handles POST /api/v1/estimates
// Validates the request, creates a job, and starts the pipeline in its own
// goroutine. Input validation failures never become job-level errors: they are
// rejected here, before a job exists.
func (h *EstimateHandler) CreateEstimate(c *gin.Context) {
	var req dto.CreateEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.validateImages(req.Images); err != nil {
		h.logger.Warn("Estimate request rejected",
			slog.Int("images", len(req.Images)),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	job := h.store.Create()

	h.logger.Info("Estimate job created",
		slog.String("job_id", job.JobID),
		slog.Int("images", len(req.Images)),
		slog.Bool("known_identity", req.Identity != nil),
	)

	// The pipeline outlives this request; it must not inherit the request
	// context or it would be canceled as soon as the response is written.
	go h.runner.Run(context.Background(), job.JobID, req.ToPipelineInput())

	c.JSON(http.StatusAccepted, dto.CreateEstimateResponse{
		JobID:  job.JobID,
		Status: job.Status,
	})
}

// GetEstimate handles GET /api/v1/estimates/:job_id
// Returns a snapshot of the job, including partial results while it runs.
func (h *EstimateHandler) GetEstimate(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.Get(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *EstimateHandler) validateImages(images []dto.ImageRefDTO) error {
	if len(images) == 0 {
		return domain.ErrNoImages
	}
	if len(images) > h.maxImages {
		return fmt.Errorf("%w: got %d, limit %d", domain.ErrTooManyImages, len(images), h.maxImages)
	}
	for i, img := range images {
		switch {
		case img.URL != "" && img.Base64 != "":
			return fmt.Errorf("image %d must carry either url or base64, not both", i+1)
		case img.URL == "" && img.Base64 == "":
			return fmt.Errorf("image %d is empty", i+1)
		case img.URL != "":
			u, err := url.Parse(img.URL)
			if err != nil {
				return fmt.Errorf("image %d has a malformed url", i+1)
			}
			if u.Scheme != "https" {
				return fmt.Errorf("image %d url must use https", i+1)
			}
		}
	}
	return nil
}
