package handler

import (
	"log/slog"

	"github.com/cardscope/gradepipe/internal/pipeline"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     *pipeline.Store
	Runner    *pipeline.Runner
	MaxImages int
}

// EstimateHandler handles grade-estimate HTTP requests
type EstimateHandler struct {
	logger    *slog.Logger
	store     *pipeline.Store
	runner    *pipeline.Runner
	maxImages int
}

// NewEstimateHandler creates a new EstimateHandler instance
func NewEstimateHandler(deps *Dependencies) *EstimateHandler {
	maxImages := deps.MaxImages
	if maxImages <= 0 {
		maxImages = 8
	}
	return &EstimateHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		runner:    deps.Runner,
		maxImages: maxImages,
	}
}
