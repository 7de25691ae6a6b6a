package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanindex/internal/config"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	ProviderStatic ProviderType = "static"
	ProviderOllama ProviderType = "ollama"
)

// NewProvider builds the provider selected by cfg. The caller owns the
// result and must Close it; nothing is cached at package level.
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig) (Provider, error) {
	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderStatic, "":
		return NewStaticEmbedder(cfg.Dimensions), nil
	case ProviderOllama:
		return NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    config.ParseDuration(cfg.Timeout, DefaultTimeout),
		})
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
