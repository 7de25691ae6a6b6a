package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/ui"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target is what the checks run against.
type Target struct {
	DataDir string
	Roots   []string
	// MaxWatches is the watcher's directory cap; zero skips the inotify check.
	MaxWatches int
}

// Checker performs preflight validation checks.
type Checker struct {
	provider embed.Provider
	verbose  bool
	noColor  bool
	output   io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithProvider enables the embedding provider check.
func WithProvider(p embed.Provider) Option {
	return func(c *Checker) {
		c.provider = p
	}
}

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithNoColor disables styled output.
func WithNoColor(noColor bool) Option {
	return func(c *Checker) {
		c.noColor = noColor
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks and returns the results.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	results := []CheckResult{
		c.CheckDataDir(t.DataDir),
		c.CheckDiskSpace(t.DataDir),
		c.CheckFileDescriptors(),
	}
	if t.MaxWatches > 0 {
		results = append(results, c.CheckInotifyWatches(t.MaxWatches))
	}
	results = append(results, c.CheckRoots(t.Roots))
	if c.provider != nil {
		results = append(results, c.CheckProvider(ctx))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	styles := ui.GetStyles(c.noColor)
	_, _ = fmt.Fprintln(c.output, styles.Header.Render("AmanIndex System Check"))
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", statusStyle(styles, r.Status).Render(r.Status.String()), r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", styles.Dim.Render(r.Details))
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		} else if r.Status != StatusPass {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	printList(c.output, "error(s)", errs)
	printList(c.output, "warning(s)", warnings)
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%d %s:\n", len(items), label)
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "  - %s\n", item)
	}
}

func statusStyle(s ui.Styles, status CheckStatus) lipgloss.Style {
	switch status {
	case StatusPass:
		return s.Success
	case StatusWarn:
		return s.Warning
	default:
		return s.Error
	}
}

// CheckDataDir creates the data directory if needed and verifies it is writable.
func (c *Checker) CheckDataDir(dir string) CheckResult {
	result := CheckResult{
		Name:     "data_dir",
		Required: true,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create: %v", err)
		return result
	}

	probe, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	result.Status = StatusPass
	result.Message = "writable"
	result.Details = dir
	return result
}

// CheckRoots verifies the crawl roots can be listed. Some unreadable roots
// only warn; none readable fails.
func (c *Checker) CheckRoots(roots []string) CheckResult {
	result := CheckResult{
		Name:     "roots",
		Required: true,
	}
	if len(roots) == 0 {
		result.Status = StatusFail
		result.Message = "no roots configured"
		return result
	}

	var bad []string
	for _, root := range roots {
		if _, err := os.ReadDir(root); err != nil {
			bad = append(bad, filepath.Clean(root))
		}
	}

	switch {
	case len(bad) == len(roots):
		result.Status = StatusFail
		result.Message = "no root is readable"
	case len(bad) > 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d of %d roots unreadable", len(bad), len(roots))
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d readable", len(roots))
	}
	if len(bad) > 0 {
		result.Details = strings.Join(bad, ", ")
	}
	return result
}
