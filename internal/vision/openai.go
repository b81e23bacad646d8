package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

const (
	// DefaultModel is the vision-capable model used for both identity
	// extraction and condition assessment.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 60 * time.Second
)

// ErrAPIKeyNotSet is returned when no OpenAI API key is configured.
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

const identitySystemPrompt = `You identify trading cards from photographs.
Return strictly one JSON object with the fields:
player, year, brand, set_name, parallel, card_number (strings, empty when unknown),
and field_confidence (object mapping each field name to a 0-1 confidence).
Any text outside the JSON object is an error.`

const conditionSystemPrompt = `You assess the physical condition of a trading card from photographs.
Return strictly one JSON object with the fields:
status ("ok", "low_confidence" or "unable"), reason (string),
grade_low and grade_high (numbers on the 1-10 scale),
centering, corners, surface, edges, notes (short observations),
confidence ("high", "medium" or "low"),
probabilities (array of {grade, probability} over PSA 10 / PSA 9 / PSA 8 / PSA 7 or lower),
bgs_probabilities (array of {grade, probability} over BGS 9.5 / 9 / 8.5 / 8 or lower).
Any text outside the JSON object is an error.`

// Client calls OpenAI's vision-capable chat API. It implements both the
// identity-extraction and condition-model collaborator interfaces.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a vision client. Model defaults to DefaultModel.
func NewClient(apiKey, model string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// ExtractIdentity derives the card's identity from its images. Model output is
// run through the repair parser so slightly malformed replies still resolve.
func (c *Client) ExtractIdentity(ctx context.Context, images []pipeline.ResolvedImage) (*domain.CardIdentity, error) {
	text, err := c.complete(ctx, identitySystemPrompt, images)
	if err != nil {
		return nil, fmt.Errorf("identity extraction failed: %w", err)
	}

	parsed := pipeline.ParseJSONWithRepair(text)
	if parsed == nil {
		return nil, fmt.Errorf("identity extraction returned unparseable output")
	}

	identity := &domain.CardIdentity{
		Player:     stringField(parsed.Value, "player"),
		Year:       stringField(parsed.Value, "year"),
		Brand:      stringField(parsed.Value, "brand"),
		SetName:    stringField(parsed.Value, "set_name"),
		Parallel:   stringField(parsed.Value, "parallel"),
		CardNumber: stringField(parsed.Value, "card_number"),
	}
	if conf, ok := parsed.Value["field_confidence"].(map[string]any); ok {
		identity.FieldConfidence = make(map[string]float64, len(conf))
		for field, v := range conf {
			if f, ok := v.(float64); ok {
				identity.FieldConfidence[field] = f
			}
		}
	}
	return identity, nil
}

// AssessCondition invokes the condition model and returns its raw text output.
// Parsing and validation belong to the pipeline, not this client.
func (c *Client) AssessCondition(ctx context.Context, images []pipeline.ResolvedImage) (string, error) {
	text, err := c.complete(ctx, conditionSystemPrompt, images)
	if err != nil {
		return "", fmt.Errorf("condition assessment failed: %w", err)
	}
	return text, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt string, images []pipeline.ResolvedImage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	parts = append(parts, openai.TextContentPart("Analyze the attached card photographs."))
	for _, img := range images {
		dataURL := "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	c.logger.Debug("Vision call completed",
		slog.String("model", string(completion.Model)),
		slog.Int("images", len(images)),
		slog.Duration("latency", time.Since(start)),
		slog.Int64("total_tokens", completion.Usage.TotalTokens),
	)

	return completion.Choices[0].Message.Content, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Interface conformance
var (
	_ pipeline.IdentityExtractor = (*Client)(nil)
	_ pipeline.ConditionModel    = (*Client)(nil)
)
