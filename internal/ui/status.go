package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains index health information.
type StatusInfo struct {
	DataDir        string    `json:"data_dir"`
	State          string    `json:"state"`
	TotalFiles     int       `json:"total_files"`
	VectorCount    int       `json:"vector_count"`
	LastUpdate     time.Time `json:"last_update"`
	StoreValid     bool      `json:"store_valid"`
	IndexExists    bool      `json:"index_exists"`
	MetadataExists bool      `json:"metadata_exists"`

	// Storage sizes in bytes
	MetadataSize int64 `json:"metadata_size"`
	IndexSize    int64 `json:"index_size"`

	EmbedderType  string `json:"embedder_type"`
	EmbedderModel string `json:"embedder_model,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.DataDir))

	_, _ = fmt.Fprintf(r.out, "  State:        %s\n", r.renderState(info.State, info.StoreValid))
	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.TotalFiles)
	_, _ = fmt.Fprintf(r.out, "  Vectors:      %d\n", info.VectorCount)
	if !info.LastUpdate.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last update:  %s\n", formatTime(info.LastUpdate))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Metadata:   %s%s\n", FormatBytes(info.MetadataSize), missing(info.MetadataExists))
	_, _ = fmt.Fprintf(r.out, "    Index:      %s%s\n", FormatBytes(info.IndexSize), missing(info.IndexExists))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Type:   %s\n", info.EmbedderType)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.EmbedderModel)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderState(state string, valid bool) string {
	switch {
	case !valid:
		return r.styles.Error.Render(state)
	case state == "READY" || state == "REUSABLE":
		return r.styles.Success.Render(state)
	default:
		return r.styles.Warning.Render(state)
	}
}

func missing(exists bool) string {
	if exists {
		return ""
	}
	return " (missing)"
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
