package critique

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// OpenAICritic asks an OpenAI-compatible vision model for a critique.
type OpenAICritic struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

func newOpenAICritic(opts backendOptions) *OpenAICritic {
	cc := openai.DefaultConfig(opts.apiKey)
	if opts.baseURL != "" {
		cc.BaseURL = opts.baseURL
	}

	model := opts.model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAICritic{
		client:  openai.NewClientWithConfig(cc),
		model:   model,
		timeout: opts.timeout,
		logger:  opts.logger,
	}
}

// Name returns "openai".
func (o *OpenAICritic) Name() string { return BackendOpenAI }

// Critique sends the rubric with the image inlined as a data URL.
func (o *OpenAICritic) Critique(ctx context.Context, imagePath string) (*Critique, error) {
	data, mime, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: RubricPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	o.logger.Debug("requesting critique", "model", o.model, "image", imagePath, "bytes", len(data))
	started := time.Now()

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("critique request failed", "error", err)
		return nil, errors.NewCritiqueUnavailableError("openai request failed", err).
			WithBackend(BackendOpenAI)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewCritiqueUnavailableError("openai returned no choices", nil).
			WithBackend(BackendOpenAI)
	}

	return finish(o.logger, resp.Choices[0].Message.Content, started)
}
