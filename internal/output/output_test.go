package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanindex/internal/index"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("Index ready") }, "✓ Index ready\n"},
		{"warning", func(w *Writer) { w.Warningf("%d roots skipped", 2) }, "! 2 roots skipped\n"},
		{"error", func(w *Writer) { w.Error("Index locked") }, "✗ Index locked\n"},
		{"no icon", func(w *Writer) { w.Status("", "Socket: /tmp/x.sock") }, "   Socket: /tmp/x.sock\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer with a buffer, which is never a terminal
			buf := &bytes.Buffer{}
			w := New(buf)

			// When
			tt.write(w)

			// Then: no escape codes are written
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Results(t *testing.T) {
	// Given
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	// When
	w.Results("budget", []index.SearchResult{
		{Path: "/home/ana/Documents/budget-2026.xlsx", Score: 0.87},
		{Path: "/home/ana/Documents/notes.txt", Score: 0.41},
	})

	// Then: ranked, with the base name first and the full path below
	out := buf.String()
	assert.Contains(t, out, `Files matching "budget"`)
	assert.Contains(t, out, " 1. budget-2026.xlsx (0.87)\n    /home/ana/Documents/budget-2026.xlsx\n")
	assert.Contains(t, out, " 2. notes.txt (0.41)")
}

func TestWriter_ResultsEmpty(t *testing.T) {
	buf := &bytes.Buffer{}

	NewPlain(buf).Results("nothing", nil)

	assert.Equal(t, "   No files found for \"nothing\"\n", buf.String())
}

func TestWriter_Newline(t *testing.T) {
	buf := &bytes.Buffer{}

	NewPlain(buf).Newline()

	assert.Equal(t, "\n", buf.String())
}
