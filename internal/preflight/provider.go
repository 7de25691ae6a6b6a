package preflight

import (
	"context"
	"fmt"
	"time"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// ProviderTimeout bounds the provider probe.
const ProviderTimeout = 10 * time.Second

// CheckProvider embeds a probe text and verifies the vector has the
// advertised dimensionality.
func (c *Checker) CheckProvider(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedding_provider",
		Required: true,
	}

	ctx, cancel := context.WithTimeout(ctx, ProviderTimeout)
	defer cancel()

	start := time.Now()
	vec, err := c.provider.Embed(ctx, "preflight probe document.pdf")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", c.provider.ModelName(), err)
		if amerrors.IsRetryable(err) {
			// Transient failures are retried during indexing.
			result.Status = StatusWarn
			result.Details = "The provider is unreachable right now; indexing retries transient failures"
		}
		return result
	}

	if want := c.provider.Dimensions(); len(vec) != want {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned %d dimensions, expected %d", c.provider.ModelName(), len(vec), want)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims, %s)", c.provider.ModelName(), len(vec), time.Since(start).Round(time.Millisecond))
	return result
}
