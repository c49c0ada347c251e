package advisory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options is the generation configuration a single call runs with.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

func DefaultOptions() Options {
	return Options{
		Model:       DefaultModel,
		Temperature: 0,
		MaxTokens:   3000,
	}
}

// Generator turns detected disease labels into a description and treatment
// advice. Switching models is serialized; each call works on its own copy of
// the options, so a concurrent switch never changes a request in flight.
type Generator struct {
	mu       sync.Mutex
	opts     Options
	provider Provider
	logger   *zap.Logger
}

func NewGenerator(provider Provider, opts Options, logger *zap.Logger) (*Generator, error) {
	if err := ValidateModel(opts.Model); err != nil {
		return nil, err
	}
	return &Generator{
		opts:     opts,
		provider: provider,
		logger:   logger.Named("advisory"),
	}, nil
}

// Options returns the current configuration.
func (g *Generator) Options() Options {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opts
}

// selectModel switches the current model when modelName differs from it and
// returns the options the caller should use. An empty name keeps the current
// model.
func (g *Generator) selectModel(modelName string) (Options, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if modelName == "" || modelName == g.opts.Model {
		return g.opts, nil
	}
	if err := ValidateModel(modelName); err != nil {
		return Options{}, err
	}
	g.logger.Info("switching model", zap.String("from", g.opts.Model), zap.String("to", modelName))
	g.opts.Model = modelName
	return g.opts, nil
}

// GenerateResponse renders the prompt for labels and returns the model's text
// verbatim. An unknown modelName fails with a *ModelNotAvailableError before
// anything is sent.
func (g *Generator) GenerateResponse(ctx context.Context, labels []string, modelName string) (string, error) {
	opts, err := g.selectModel(modelName)
	if err != nil {
		return "", err
	}

	prompt, err := BuildPrompt(labels)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	g.logger.Debug("raw prompt", zap.String("model", opts.Model), zap.String("prompt", prompt))

	start := time.Now()
	text, err := g.provider.Complete(ctx, prompt, opts)
	if err != nil {
		g.logger.Error("completion failed", zap.String("model", opts.Model), zap.Error(err))
		return "", err
	}
	g.logger.Debug("raw prompt response",
		zap.String("model", opts.Model),
		zap.Int("labels", len(labels)),
		zap.Duration("took", time.Since(start)),
		zap.String("response", text))
	return text, nil
}
