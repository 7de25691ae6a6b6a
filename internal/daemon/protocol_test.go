package daemon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/index"
)

func TestSearchParams_Validate(t *testing.T) {
	t.Run("blank query is rejected", func(t *testing.T) {
		p := SearchParams{Query: "   "}
		assert.Error(t, p.Validate())
	})

	t.Run("missing limit gets the default", func(t *testing.T) {
		p := SearchParams{Query: "invoice"}
		require.NoError(t, p.Validate())
		assert.Equal(t, index.DefaultSearchLimit, p.Limit)
	})

	t.Run("explicit limit is kept", func(t *testing.T) {
		p := SearchParams{Query: "invoice", Limit: 3}
		require.NoError(t, p.Validate())
		assert.Equal(t, 3, p.Limit)
	})
}

func TestResponses_Wire(t *testing.T) {
	// Given
	ok := NewSuccessResponse("req-1", PingResult{Pong: true})
	bad := NewErrorResponse("req-2", ErrCodeMethodNotFound, "method not found: nope")

	// When
	okData, err := json.Marshal(ok)
	require.NoError(t, err)
	badData, err := json.Marshal(bad)
	require.NoError(t, err)

	// Then: result and error are mutually exclusive on the wire
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"pong":true},"id":"req-1"}`, string(okData))
	assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found: nope"},"id":"req-2"}`, string(badData))
	assert.Equal(t, "method not found: nope (code: -32601)", bad.Error.Error())
}

func TestNewRebuildResult(t *testing.T) {
	// Given: a partially failed rebuild
	res := &index.Result{
		Outcome:       index.OutcomePartial,
		Processed:     40,
		Failed:        10,
		Batches:       5,
		FailedBatches: 1,
		Duration:      1500 * time.Millisecond,
	}

	// When
	out := NewRebuildResult(res)

	// Then
	assert.Equal(t, "partial", out.Outcome)
	assert.Equal(t, "completed with 1 of 5 batches failed", out.Message)
	assert.Equal(t, 40, out.Processed)
	assert.Equal(t, 10, out.Failed)
	assert.InDelta(t, 1.5, out.DurationSecs, 0.001)
}
