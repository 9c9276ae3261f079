package internal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryIO       ErrorCategory = "io_error"            // File system, permissions, disk space
	ErrorCategoryDecode   ErrorCategory = "decode_error"        // Image/container could not be decoded
	ErrorCategoryMetadata ErrorCategory = "metadata_error"      // Tag present but unparseable
	ErrorCategoryTool     ErrorCategory = "external_tool_error" // ffprobe, ffmpeg or exiftool failed
	ErrorCategoryUnknown  ErrorCategory = "unknown_error"       // Unexpected errors
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical" // System-level issues (disk full, permissions)
	ErrorSeverityError    ErrorSeverity = "error"    // File-level issues (corruption, unreadable)
	ErrorSeverityWarning  ErrorSeverity = "warning"  // Recoverable issues (no usable date)
)

// ProcessError represents a categorized error during file processing
type ProcessError struct {
	FilePath    string
	Op          string // hash, probe, stat, composite, stamp, ...
	Category    ErrorCategory
	Severity    ErrorSeverity
	OriginalErr error
	Context     map[string]string // Additional context (tool, output path, etc.)
	Suggestion  string            // User-friendly suggestion to fix
}

func (e *ProcessError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[%s/%s] %s %s: %v", e.Severity, e.Category, e.Op, e.FilePath, e.OriginalErr)
	}
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Category, e.FilePath, e.OriginalErr)
}

func (e *ProcessError) Unwrap() error {
	return e.OriginalErr
}

func newProcessError(path, op string, cat ErrorCategory, sev ErrorSeverity, err error) *ProcessError {
	return &ProcessError{
		FilePath:    path,
		Op:          op,
		Category:    cat,
		Severity:    sev,
		OriginalErr: err,
		Context:     make(map[string]string),
	}
}

// IOError wraps a filesystem failure for path.
func IOError(path, op string, err error) *ProcessError {
	pe := newProcessError(path, op, ErrorCategoryIO, ErrorSeverityError, err)
	pe.Suggestion = "Check that the file still exists and is readable"
	return pe
}

// DecodeError wraps a failure to decode image or container data.
func DecodeError(path, op string, err error) *ProcessError {
	pe := newProcessError(path, op, ErrorCategoryDecode, ErrorSeverityError, err)
	pe.Suggestion = "File content does not match its extension or is truncated"
	return pe
}

// MetadataParseError marks a tag that exists but cannot be parsed. It never
// aborts a file; the tag is treated as absent.
func MetadataParseError(path, op string, err error) *ProcessError {
	pe := newProcessError(path, op, ErrorCategoryMetadata, ErrorSeverityWarning, err)
	pe.Suggestion = "Date tag ignored - another source will be used"
	return pe
}

// ExternalToolError wraps a failing ffprobe/ffmpeg/exiftool invocation.
func ExternalToolError(path, tool string, err error) *ProcessError {
	pe := newProcessError(path, tool, ErrorCategoryTool, ErrorSeverityError, err)
	pe.Context["tool"] = tool
	pe.Suggestion = fmt.Sprintf("Verify %s is installed and the binary path in snapsift.toml is correct", tool)
	return pe
}

// CategorizeError analyzes an error and returns a ProcessError with category and severity
func CategorizeError(filePath string, err error) *ProcessError {
	if err == nil {
		return nil
	}

	var existing *ProcessError
	if errors.As(err, &existing) {
		return existing
	}

	procErr := newProcessError(filePath, "", ErrorCategoryUnknown, ErrorSeverityError, err)

	var execErr *exec.Error
	var exitErr *exec.ExitError
	if errors.As(err, &execErr) || errors.As(err, &exitErr) {
		procErr.Category = ErrorCategoryTool
		procErr.Suggestion = "External tool failed - check that ffmpeg, ffprobe and exiftool are installed"
		return procErr
	}
	if errors.Is(err, os.ErrNotExist) {
		procErr.Category = ErrorCategoryIO
		procErr.Suggestion = "File disappeared during the run - was the folder modified concurrently?"
		return procErr
	}

	errStr := strings.ToLower(err.Error())

	// Categorize based on error message
	switch {
	// Disk/Filesystem errors (CRITICAL)
	case strings.Contains(errStr, "no space left"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Free up disk space on the export drive and rerun"

	case strings.Contains(errStr, "permission denied"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Check file permissions on the export folder and scratch directory"

	case strings.Contains(errStr, "read-only file system"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "Export filesystem is read-only - check mount options"

	case strings.Contains(errStr, "too many open files"):
		procErr.Category = ErrorCategoryIO
		procErr.Severity = ErrorSeverityCritical
		procErr.Suggestion = "System file descriptor limit reached - increase ulimit or restart"

	// I/O errors (ERROR)
	case strings.Contains(errStr, "input/output error"):
		procErr.Category = ErrorCategoryIO
		procErr.Suggestion = "I/O error - check disk health with SMART tools"

	case strings.Contains(errStr, "no such file"):
		procErr.Category = ErrorCategoryIO
		procErr.Suggestion = "File disappeared during the run - was the folder modified concurrently?"

	// Decode errors
	case strings.Contains(errStr, "unknown format") || strings.Contains(errStr, "invalid jpeg") ||
		strings.Contains(errStr, "invalid format") || strings.Contains(errStr, "unexpected eof"):
		procErr.Category = ErrorCategoryDecode
		procErr.Suggestion = "File content does not match its extension or is truncated"

	// Metadata errors (WARNING - another date source is used)
	case strings.Contains(errStr, "exif") || strings.Contains(errStr, "metadata"):
		procErr.Category = ErrorCategoryMetadata
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Date tag ignored - another source will be used"

	case strings.Contains(errStr, "ffmpeg") || strings.Contains(errStr, "ffprobe") || strings.Contains(errStr, "exiftool"):
		procErr.Category = ErrorCategoryTool
		procErr.Suggestion = "External tool failed - check that ffmpeg, ffprobe and exiftool are installed"

	// Default: unknown error
	default:
		procErr.Suggestion = "Unexpected error - check logs for details"
	}

	return procErr
}

// ErrorStats tracks error statistics during a run
type ErrorStats struct {
	Total      int
	Critical   int
	Errors     int
	Warnings   int
	ByCategory map[ErrorCategory]int
	ByOp       map[string]int
	LastErrors []*ProcessError // Last 5 errors for quick diagnosis
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ByCategory: make(map[ErrorCategory]int),
		ByOp:       make(map[string]int),
		LastErrors: make([]*ProcessError, 0, 5),
	}
}

func (s *ErrorStats) Add(err *ProcessError) {
	s.Total++
	s.ByCategory[err.Category]++
	if err.Op != "" {
		s.ByOp[err.Op]++
	}

	switch err.Severity {
	case ErrorSeverityCritical:
		s.Critical++
	case ErrorSeverityError:
		s.Errors++
	case ErrorSeverityWarning:
		s.Warnings++
	}

	// Keep last 5 errors
	if len(s.LastErrors) >= 5 {
		s.LastErrors = s.LastErrors[1:]
	}
	s.LastErrors = append(s.LastErrors, err)
}

// GenerateReport creates a human-readable error report
func (s *ErrorStats) GenerateReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("\n❌ Run encountered %d errors:\n\n", s.Total))

	// Breakdown by severity
	if s.Critical > 0 {
		report.WriteString(fmt.Sprintf("  🔴 Critical: %d (system-level issues)\n", s.Critical))
	}
	if s.Errors > 0 {
		report.WriteString(fmt.Sprintf("  🟠 Errors:   %d (file-level issues)\n", s.Errors))
	}
	if s.Warnings > 0 {
		report.WriteString(fmt.Sprintf("  🟡 Warnings: %d (recoverable issues)\n", s.Warnings))
	}

	report.WriteString("\n")

	// Breakdown by category, sorted for stable output
	report.WriteString("Error categories:\n")
	cats := make([]string, 0, len(s.ByCategory))
	for cat := range s.ByCategory {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)
	for _, cat := range cats {
		report.WriteString(fmt.Sprintf("  • %s: %d\n", cat, s.ByCategory[ErrorCategory(cat)]))
	}

	report.WriteString("\n")

	// Last few errors with suggestions
	report.WriteString("Recent errors:\n")
	for i, err := range s.LastErrors {
		report.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, err.FilePath))
		report.WriteString(fmt.Sprintf("   Op: %s | Category: %s | Severity: %s\n", err.Op, err.Category, err.Severity))
		report.WriteString(fmt.Sprintf("   Error: %v\n", err.OriginalErr))
		if err.Suggestion != "" {
			report.WriteString(fmt.Sprintf("   💡 Suggestion: %s\n", err.Suggestion))
		}
	}

	report.WriteString("\n")
	report.WriteString(s.generateSuggestions())

	return report.String()
}

func (s *ErrorStats) generateSuggestions() string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggested next steps:\n")

	if s.ByCategory[ErrorCategoryIO] > 0 {
		suggestions.WriteString("  • Check disk space and permissions\n")
	}

	if s.ByCategory[ErrorCategoryTool] > 0 {
		suggestions.WriteString("  • Run `ffmpeg -version`, `ffprobe -version` and `exiftool -ver` to confirm the tools work\n")
	}

	if s.ByCategory[ErrorCategoryDecode] > 0 {
		suggestions.WriteString("  • Re-extract the export archive; some files look truncated\n")
	}

	if s.Total > 0 && s.ByCategory[ErrorCategoryMetadata] > s.Total/2 {
		suggestions.WriteString("  • Many metadata errors - dates fell back to filenames or filesystem times\n")
	}

	suggestions.WriteString("  • Rerunning is safe: completed files are left as they are\n")
	suggestions.WriteString("  • Check the run manifest for the detailed error log\n")

	return suggestions.String()
}
