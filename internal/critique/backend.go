package critique

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bneidlinger/t-display-cityscreensaver/internal/config"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/errors"
	"github.com/bneidlinger/t-display-cityscreensaver/internal/logging"
)

// Backend names accepted in critic.backend.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// Default models and credential variables per backend.
const (
	DefaultGeminiModel  = "gemini-2.0-flash"
	DefaultOpenAIModel  = "gpt-4o"
	DefaultGeminiKeyEnv = "GEMINI_API_KEY"
	DefaultOpenAIKeyEnv = "OPENAI_API_KEY"
)

// New builds the critic selected by cfg. The credential is checked here,
// before any network call: a missing key yields a *errors.ConfigurationError
// wrapping errors.ErrMissingCredential.
func New(ctx context.Context, cfg config.CriticConfig, logger *logging.Logger) (Critic, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	backend := strings.ToLower(cfg.Backend)
	if backend == "" {
		backend = BackendGemini
	}

	keyEnv := cfg.APIKeyEnv
	switch backend {
	case BackendGemini:
		if keyEnv == "" {
			keyEnv = DefaultGeminiKeyEnv
		}
	case BackendOpenAI:
		if keyEnv == "" {
			keyEnv = DefaultOpenAIKeyEnv
		}
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("unknown critic backend %q", cfg.Backend), errors.ErrInvalidConfig).
			WithSetting("critic.backend").
			WithHint("use one of: " + strings.Join(config.ValidCriticBackends(), ", "))
	}

	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		return nil, errors.NewConfigurationError(backend+" critic credential missing", errors.ErrMissingCredential).
			WithSetting(keyEnv).
			WithHint(fmt.Sprintf("export %s=<your key>", keyEnv))
	}

	opts := backendOptions{
		apiKey:  apiKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		timeout: cfg.CriticTimeout(),
		logger:  logger.With("critic", backend),
	}

	if backend == BackendOpenAI {
		return newOpenAICritic(opts), nil
	}
	return newGeminiCritic(ctx, opts)
}

type backendOptions struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	logger  *logging.Logger
}

// loadImage reads the capture and detects its content type. Anything that is
// not an image is rejected before it is sent anywhere.
func loadImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.NewValidationError("cannot read capture").
			WithField("image").
			WithValue(path).
			WithCause(err)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, "", errors.NewValidationError("capture is not an image (" + mtype.String() + ")").
			WithField("image").
			WithValue(path)
	}
	return data, mtype.String(), nil
}

// withTimeout bounds a single critique request.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// finish parses a model answer and logs the outcome.
func finish(logger *logging.Logger, raw string, started time.Time) (*Critique, error) {
	c, err := Parse(raw)
	if err != nil {
		logger.Warn("critique response did not match schema",
			"error", err,
			"raw_bytes", len(raw),
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return c, err
	}
	logger.Info("critique received",
		"overall_score", c.OverallScore,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return c, nil
}
