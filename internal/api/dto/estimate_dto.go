package dto

import (
	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// ImageRefDTO is one image reference: exactly one of url or base64.
type ImageRefDTO struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// IdentityDTO is a client-supplied card identity, used to skip re-deriving it.
type IdentityDTO struct {
	Player     string `json:"player,omitempty"`
	Year       string `json:"year,omitempty"`
	Brand      string `json:"brand,omitempty"`
	SetName    string `json:"set_name,omitempty"`
	Parallel   string `json:"parallel,omitempty"`
	CardNumber string `json:"card_number,omitempty"`
}

// CreateEstimateRequest is the body of POST /api/v1/estimates.
type CreateEstimateRequest struct {
	Images   []ImageRefDTO `json:"images" binding:"required"`
	Identity *IdentityDTO  `json:"identity,omitempty"`
}

// CreateEstimateResponse acknowledges a queued estimate job.
type CreateEstimateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ToPipelineInput converts the request into the runner's input.
func (r *CreateEstimateRequest) ToPipelineInput() pipeline.Input {
	refs := make([]pipeline.ImageRef, len(r.Images))
	for i, img := range r.Images {
		refs[i] = pipeline.ImageRef{URL: img.URL, Base64: img.Base64}
	}

	var identity *domain.CardIdentity
	if r.Identity != nil {
		identity = &domain.CardIdentity{
			Player:     r.Identity.Player,
			Year:       r.Identity.Year,
			Brand:      r.Identity.Brand,
			SetName:    r.Identity.SetName,
			Parallel:   r.Identity.Parallel,
			CardNumber: r.Identity.CardNumber,
		}
	}

	return pipeline.Input{Images: refs, KnownIdentity: identity}
}
