package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/lumostime/lumos-relay/internal/observability"
	"github.com/lumostime/lumos-relay/internal/tracing"
	"github.com/rs/zerolog"
)

// Reason classifies why a generation fell back.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonSerialization     Reason = "serialization"
	ReasonCredentialMissing Reason = "credential_missing"
	ReasonProviderError     Reason = "provider_error"
)

// FallbackPolicy picks the text returned when generation fails.
type FallbackPolicy func(reason Reason, err error) string

// StaticFallback returns the same text for every failure.
func StaticFallback(text string) FallbackPolicy {
	return func(Reason, error) string {
		return text
	}
}

// Result is the detailed outcome of a generation.
type Result struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
	Reason   Reason `json:"reason,omitempty"`
}

// Config configures a Generator.
type Config struct {
	Provider Provider
	Model    string
	Fallback FallbackPolicy

	// CredentialMissing marks the provider as running on the placeholder key.
	CredentialMissing bool

	Logger zerolog.Logger
}

// Generator produces insights from time-log records.
type Generator struct {
	provider          Provider
	model             string
	fallback          FallbackPolicy
	credentialMissing bool
	logger            zerolog.Logger
}

// NewGenerator creates a generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Fallback == nil {
		cfg.Fallback = StaticFallback(FallbackText)
	}

	return &Generator{
		provider:          cfg.Provider,
		model:             cfg.Model,
		fallback:          cfg.Fallback,
		credentialMissing: cfg.CredentialMissing,
		logger:            cfg.Logger,
	}, nil
}

// Generate returns the provider text for records, or the fallback text on any failure.
func (g *Generator) Generate(ctx context.Context, records []any) string {
	return g.GenerateResult(ctx, records).Text
}

// GenerateResult is Generate with the fallback outcome exposed.
func (g *Generator) GenerateResult(ctx context.Context, records []any) (result Result) {
	start := time.Now()
	logger := tracing.LoggerFromContext(ctx, g.logger).With().
		Str("provider", g.provider.Name()).
		Str("model", g.model).
		Int("records", len(records)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			result = g.fail(logger, start, ReasonProviderError, fmt.Errorf("provider panicked: %v", r))
		}
	}()

	prompt, err := BuildPrompt(records)
	if err != nil {
		return g.fail(logger, start, ReasonSerialization, err)
	}

	text, err := g.provider.Generate(ctx, g.model, prompt)
	if err != nil {
		reason := ReasonProviderError
		if g.credentialMissing {
			reason = ReasonCredentialMissing
		}
		return g.fail(logger, start, reason, err)
	}

	observability.RecordInsight(g.provider.Name(), time.Since(start), "success")
	logger.Debug().Dur("duration", time.Since(start)).Msg("Insight generated")

	return Result{Text: text}
}

func (g *Generator) fail(logger zerolog.Logger, start time.Time, reason Reason, err error) Result {
	observability.RecordInsight(g.provider.Name(), time.Since(start), string(reason))
	logger.Error().
		Err(err).
		Str("reason", string(reason)).
		Msg("Insight generation failed, using fallback")

	return Result{
		Text:     g.fallback(reason, err),
		Fallback: true,
		Reason:   reason,
	}
}
