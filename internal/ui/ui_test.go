package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageValidating, "Validating", "CHECK"},
		{StageReconciling, "Reconciling", "PRUNE"},
		{StageScanning, "Scanning", "SCAN"},
		{StageEmbedding, "Embedding", "EMBED"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.stage.String())
		assert.Equal(t, tt.icon, tt.stage.Icon())
	}
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)

	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&buf))
}

func TestPlainRenderer_Output(t *testing.T) {
	// Given: a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))
	require.NoError(t, r.Start(context.Background()))

	// When: progress, a warning and completion are rendered
	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 2, Total: 10, Message: "batch 2"})
	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "scanning /data"})
	r.AddError(ErrorEvent{File: "/data/x", Err: errors.New("denied"), IsWarn: true})
	r.Complete(CompletionStats{
		Outcome: "partial", Files: 8, Batches: 10, FailedBatches: 2,
		Duration: 1500 * time.Millisecond,
		Message:  "completed with 2 of 10 batches failed",
	})
	require.NoError(t, r.Stop())

	// Then: every line is present
	out := buf.String()
	assert.Contains(t, out, "[EMBED] 2/10 - batch 2")
	assert.Contains(t, out, "[SCAN] scanning /data")
	assert.Contains(t, out, "WARN: /data/x: denied")
	assert.Contains(t, out, "Complete (partial): 8 files indexed in 1.5s (2 of 10 batches failed)")
	assert.Contains(t, out, "completed with 2 of 10 batches failed")
}

func TestStyledRenderer_NoColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewStyledRenderer(NewConfig(&buf, WithNoColor(true)))
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 5, Total: 10})
	r.Complete(CompletionStats{Outcome: "rebuilt", Files: 42, Embedder: EmbedderInfo{Backend: "static", Model: "static-256", Dimensions: 256}})
	require.NoError(t, r.Stop())

	out := buf.String()
	assert.Contains(t, out, "[############............] 5/10")
	assert.Contains(t, out, "Index rebuilt")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "static-256")
}

func TestStatusRenderer(t *testing.T) {
	info := StatusInfo{
		DataDir: "/var/lib/idx", State: "READY", TotalFiles: 3, VectorCount: 3,
		StoreValid: true, IndexExists: true, MetadataExists: false,
		MetadataSize: 2048, EmbedderType: "static",
	}

	var buf bytes.Buffer
	require.NoError(t, NewStatusRenderer(&buf, true).Render(info))
	out := buf.String()
	assert.Contains(t, out, "Index Status: /var/lib/idx")
	assert.Contains(t, out, "2.0 KB (missing)")

	buf.Reset()
	require.NoError(t, NewStatusRenderer(&buf, true).RenderJSON(info))
	assert.True(t, strings.Contains(buf.String(), `"metadata_exists": false`))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}

func TestTruncateLeft(t *testing.T) {
	assert.Equal(t, "short", truncateLeft("short", 10))
	assert.Equal(t, "...wxyz", truncateLeft("abcdefghijklmnopqrstuvwxyz", 7))
}
