package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestCategorizeError_DiskSpace(t *testing.T) {
	err := errors.New("write failed: no space left on device")
	procErr := CategorizeError("/test/file.jpg", err)

	if procErr.Category != ErrorCategoryIO {
		t.Errorf("Expected IO category, got %s", procErr.Category)
	}
	if procErr.Severity != ErrorSeverityCritical {
		t.Errorf("Expected critical severity, got %s", procErr.Severity)
	}
	if !strings.Contains(procErr.Suggestion, "disk space") {
		t.Errorf("Expected disk space suggestion, got: %s", procErr.Suggestion)
	}
}

func TestCategorizeError_Permission(t *testing.T) {
	err := errors.New("open /export/file.jpg: permission denied")
	procErr := CategorizeError("/test/file.jpg", err)

	if procErr.Category != ErrorCategoryIO {
		t.Errorf("Expected IO category, got %s", procErr.Category)
	}
	if procErr.Severity != ErrorSeverityCritical {
		t.Errorf("Expected critical severity, got %s", procErr.Severity)
	}
}

func TestCategorizeError_NotExistIsIO(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here.jpg")
	procErr := CategorizeError("/definitely/not/here.jpg", statErr)

	if procErr.Category != ErrorCategoryIO {
		t.Errorf("Expected IO category, got %s", procErr.Category)
	}
}

func TestCategorizeError_Metadata(t *testing.T) {
	err := errors.New("failed to read exif data")
	procErr := CategorizeError("/test/file.jpg", err)

	if procErr.Category != ErrorCategoryMetadata {
		t.Errorf("Expected metadata category, got %s", procErr.Category)
	}
	if procErr.Severity != ErrorSeverityWarning {
		t.Errorf("Expected warning severity, got %s", procErr.Severity)
	}
}

func TestCategorizeError_KeepsWrappedProcessError(t *testing.T) {
	inner := ExternalToolError("/test/clip.mp4", "ffprobe", errors.New("exit status 1"))
	wrapped := fmt.Errorf("probe video: %w", inner)

	procErr := CategorizeError("/test/clip.mp4", wrapped)
	if procErr != inner {
		t.Fatalf("Expected the wrapped ProcessError to be returned")
	}
	if procErr.Category != ErrorCategoryTool {
		t.Errorf("Expected external tool category, got %s", procErr.Category)
	}
	if procErr.Context["tool"] != "ffprobe" {
		t.Errorf("Expected tool context 'ffprobe', got '%s'", procErr.Context["tool"])
	}
}

func TestCategorizeError_Nil(t *testing.T) {
	if CategorizeError("/test/file.jpg", nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestProcessError_Unwrap(t *testing.T) {
	base := os.ErrPermission
	procErr := IOError("/test/file.jpg", "hash", base)

	if !errors.Is(procErr, os.ErrPermission) {
		t.Error("Expected errors.Is to see through ProcessError")
	}
	if !strings.Contains(procErr.Error(), "hash /test/file.jpg") {
		t.Errorf("Expected op and path in message, got: %s", procErr.Error())
	}
}

func TestErrorStats_GenerateReport(t *testing.T) {
	stats := NewErrorStats()

	stats.Add(&ProcessError{
		FilePath:    "/test/file1.jpg",
		Op:          "hash",
		Category:    ErrorCategoryIO,
		Severity:    ErrorSeverityError,
		OriginalErr: errors.New("I/O error"),
		Suggestion:  "Check disk health",
	})

	stats.Add(&ProcessError{
		FilePath:    "/test/file2.mp4",
		Op:          "ffprobe",
		Category:    ErrorCategoryTool,
		Severity:    ErrorSeverityError,
		OriginalErr: errors.New("exit status 1"),
	})

	report := stats.GenerateReport()

	if !strings.Contains(report, "Run encountered 2 errors") {
		t.Error("Report missing main header")
	}
	if !strings.Contains(report, "Error categories") {
		t.Error("Report missing categories section")
	}
	if !strings.Contains(report, "Recent errors") {
		t.Error("Report missing recent errors section")
	}
	if !strings.Contains(report, "Suggested next steps") {
		t.Error("Report missing suggestions section")
	}
	if !strings.Contains(report, "file1.jpg") {
		t.Error("Report missing first error")
	}
	if !strings.Contains(report, "Check disk health") {
		t.Error("Report missing suggestion")
	}
	if !strings.Contains(report, "ffprobe -version") {
		t.Error("Report missing tool suggestion")
	}
}

func TestErrorStats_ByCategory(t *testing.T) {
	stats := NewErrorStats()

	stats.Add(&ProcessError{Op: "hash", Category: ErrorCategoryIO, Severity: ErrorSeverityError, OriginalErr: errors.New("test")})
	stats.Add(&ProcessError{Op: "hash", Category: ErrorCategoryIO, Severity: ErrorSeverityError, OriginalErr: errors.New("test")})
	stats.Add(&ProcessError{Op: "composite", Category: ErrorCategoryDecode, Severity: ErrorSeverityError, OriginalErr: errors.New("test")})

	if stats.ByCategory[ErrorCategoryIO] != 2 {
		t.Errorf("Expected 2 IO errors, got %d", stats.ByCategory[ErrorCategoryIO])
	}
	if stats.ByCategory[ErrorCategoryDecode] != 1 {
		t.Errorf("Expected 1 decode error, got %d", stats.ByCategory[ErrorCategoryDecode])
	}
	if stats.ByOp["hash"] != 2 {
		t.Errorf("Expected 2 hash failures, got %d", stats.ByOp["hash"])
	}
}

func TestErrorStats_KeepsLastFive(t *testing.T) {
	stats := NewErrorStats()
	for i := 0; i < 7; i++ {
		stats.Add(&ProcessError{
			FilePath:    fmt.Sprintf("/test/file%d.jpg", i),
			Category:    ErrorCategoryIO,
			Severity:    ErrorSeverityError,
			OriginalErr: errors.New("test"),
		})
	}

	if len(stats.LastErrors) != 5 {
		t.Fatalf("Expected 5 recent errors, got %d", len(stats.LastErrors))
	}
	if stats.LastErrors[0].FilePath != "/test/file2.jpg" {
		t.Errorf("Expected oldest kept error to be file2, got %s", stats.LastErrors[0].FilePath)
	}
	if stats.Total != 7 {
		t.Errorf("Expected total 7, got %d", stats.Total)
	}
}
