package critique

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// GeminiCritic asks a Gemini vision model for a critique.
type GeminiCritic struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

func newGeminiCritic(ctx context.Context, opts backendOptions) (*GeminiCritic, error) {
	cc := &genai.ClientConfig{
		APIKey:  opts.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create gemini client", err).
			WithSetting("critic")
	}

	model := opts.model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiCritic{
		client:  client,
		model:   model,
		timeout: opts.timeout,
		logger:  opts.logger,
	}, nil
}

// Name returns "gemini".
func (g *GeminiCritic) Name() string { return BackendGemini }

// Critique sends the rubric and the image in one request and parses the answer.
func (g *GeminiCritic) Critique(ctx context.Context, imagePath string) (*Critique, error) {
	data, mime, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(RubricPrompt),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}

	g.logger.Debug("requesting critique", "model", g.model, "image", imagePath, "bytes", len(data))
	started := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		g.logger.Error("critique request failed", "error", err)
		return nil, errors.NewCritiqueUnavailableError("gemini request failed", err).
			WithBackend(BackendGemini)
	}

	return finish(g.logger, resp.Text(), started)
}
