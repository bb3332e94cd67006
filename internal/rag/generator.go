package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/session"
)

// StreamCallback receives one generated fragment. Returning an error aborts
// the stream and surfaces the error from Stream.
type StreamCallback func(ctx context.Context, fragment string) error

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// ModelName is the provider-qualified model (e.g. "ollama/llama3").
	ModelName string

	// SystemPrompt is prepended to every generation. Empty means none.
	SystemPrompt string

	// Temperature is passed through to the model.
	Temperature float32

	// RateLimiter gates model calls. Nil installs a default limiter.
	RateLimiter *rate.Limiter
}

// Generator streams model output for prompts through Genkit.
// Safe for concurrent use; the rate limiter is shared across calls.
type Generator struct {
	g            *genkit.Genkit
	modelName    string
	systemPrompt string
	temperature  float32
	limiter      *rate.Limiter
	logger       log.Logger
}

// NewGenerator creates a generator.
func NewGenerator(g *genkit.Genkit, cfg GeneratorConfig, logger log.Logger) *Generator {
	limiter := cfg.RateLimiter
	if limiter == nil {
		// Default: sustained 10 req/s with bursts of 30
		limiter = rate.NewLimiter(10, 30)
	}

	return &Generator{
		g:            g,
		modelName:    cfg.ModelName,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		limiter:      limiter,
		logger:       logger,
	}
}

// Stream generates a response for prompt, invoking cb once per fragment as
// the model produces it, and returns the complete text. A nil cb degenerates
// to buffered generation. Fragments are delivered in order; text the model
// produces lazily is never buffered ahead of the callback.
//
// Backend failures wrap ErrGeneration. Fragments already delivered before a
// mid-stream failure stand; Stream does not re-deliver or retract them.
// Cancelling ctx aborts the model call.
func (g *Generator) Stream(ctx context.Context, prompt string, cb StreamCallback) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %w", ErrGeneration, err)
	}

	opts := []ai.GenerateOption{
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: float64(g.temperature),
		}),
	}
	if g.modelName != "" {
		opts = append(opts, ai.WithModelName(g.modelName))
	}
	if g.systemPrompt != "" {
		opts = append(opts, ai.WithSystem(g.systemPrompt))
	}

	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return cb(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, g.g, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return resp.Text(), nil
}

// titleInputMaxRunes caps how much of the first message feeds the title
// prompt.
const titleInputMaxRunes = 500

var titlePrompt = fmt.Sprintf(
	"Generate a concise title (max %d characters) for a chat session based on this first message.",
	session.MaxTitleLength) + `
The title should capture the main topic or intent.
Return ONLY the title text, no quotes, no explanations, no punctuation at the end.

Message: %s

Title:`

// Title generates a concise session title from the user's first message.
// Best-effort: returns an empty string on any failure.
func (g *Generator) Title(ctx context.Context, userMessage string) string {
	inputRunes := []rune(userMessage)
	if len(inputRunes) > titleInputMaxRunes {
		userMessage = string(inputRunes[:titleInputMaxRunes]) + "..."
	}

	opts := []ai.GenerateOption{
		ai.WithPrompt(fmt.Sprintf(titlePrompt, userMessage)),
	}
	if g.modelName != "" {
		opts = append(opts, ai.WithModelName(g.modelName))
	}

	resp, err := genkit.Generate(ctx, g.g, opts...)
	if err != nil {
		g.logger.Debug("title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(resp.Text())
	if title == "" {
		return ""
	}

	titleRunes := []rune(title)
	if len(titleRunes) > session.MaxTitleLength {
		title = string(titleRunes[:session.MaxTitleLength-3]) + "..."
	}

	return title
}
