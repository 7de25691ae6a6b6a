package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a general-purpose text embedding model.
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string
	// Dimensions overrides detection when the model's size is known.
	Dimensions int
	Timeout    time.Duration
	// Client replaces the default HTTP client (tests).
	Client *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder calls Ollama's /api/embed endpoint. It makes exactly one
// request per call; the pipeline owns retries and classifies failures by
// the error it returns.
type OllamaEmbedder struct {
	cfg    OllamaConfig
	client *http.Client
	dims   int
}

// NewOllamaEmbedder creates the embedder. When cfg.Dimensions is zero a
// probe request is made to learn the model's vector size.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	e := &OllamaEmbedder{cfg: cfg, client: client, dims: cfg.Dimensions}
	if e.dims == 0 {
		vecs, err := e.doEmbed(ctx, []string{"dimension probe"})
		if err != nil {
			return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
		}
		e.dims = len(vecs[0])
		slog.Info("ollama_dimensions_detected",
			slog.String("model", cfg.Model),
			slog.Int("dimensions", e.dims))
	}
	return e, nil
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.doEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.doEmbed(ctx, texts)
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(respBody))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, amerrors.TransientProviderError("failed to decode embedding response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d embeddings for %d inputs", len(out.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		v := make([]float32, len(emb))
		for j, f := range emb {
			v[j] = float32(f)
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy: rate
// limits and server errors are transient, other client errors are not.
func classifyStatus(code int, body string) error {
	msg := fmt.Sprintf("embedding failed with status %d: %s", code, strings.TrimSpace(body))
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
		return amerrors.TransientProviderError(msg, nil)
	}
	return amerrors.New(amerrors.ErrCodeProviderRejected, msg, nil)
}

// classifyTransportError treats timeouts, refused and reset connections as
// transient.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return amerrors.TransientProviderError("embedding request failed", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return amerrors.TransientProviderError("embedding request failed", err)
	}
	return amerrors.New(amerrors.ErrCodeNetworkUnavailable, "embedding provider unreachable", err)
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.cfg.Model }

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
