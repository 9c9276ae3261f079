package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunSession manages a mutating run with manifest logging and an optional
// hardlink folder of its composites.
type RunSession struct {
	ID            string   // 2025-01-15-103045-1a2b3c4d
	StateDir      string   // State root path
	SessionDir    string   // Full path to session directory
	ManifestFile  *os.File // Open file handle for manifest.jsonl
	InputDir      string   // Export folder being processed
	usedFilenames map[string]int
	stats         RunStats
}

// RunStats tracks statistics for a run
type RunStats struct {
	TotalScanned      int
	DuplicatesRemoved int
	Stamped           int
	VoiceMemos        int
	Composited        int
	Errors            int
}

// ManifestEvent represents a single event in the manifest log
type ManifestEvent struct {
	Event    string `json:"event"`
	Ts       string `json:"ts"`
	RunID    string `json:"run_id,omitempty"`
	Src      string `json:"src,omitempty"`
	Dest     string `json:"dest,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Survivor string `json:"survivor,omitempty"`
	Browse   string `json:"browse,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Date     string `json:"date,omitempty"`
	Source   string `json:"date_source,omitempty"`
	Error    string `json:"error,omitempty"`

	// Error details (for categorized errors)
	ErrorOp         string `json:"error_op,omitempty"`
	ErrorCategory   string `json:"error_category,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// Session start/end fields
	InputDir          string `json:"input_dir,omitempty"`
	TotalFiles        int    `json:"total_files,omitempty"`
	DuplicatesRemoved int    `json:"duplicates_removed,omitempty"`
	Stamped           int    `json:"stamped,omitempty"`
	VoiceMemos        int    `json:"voice_memos,omitempty"`
	Composited        int    `json:"composited,omitempty"`
	ErrorCount        int    `json:"errors,omitempty"`
}

// NewRunSession creates the run directory and opens its manifest.
func NewRunSession(stateDir, inputDir string) (*RunSession, error) {
	sessionID := time.Now().Format("2006-01-02-150405") + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]

	sessionDir := filepath.Join(stateDir, "runs", sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	// Open manifest file for append-only writes
	manifestPath := filepath.Join(sessionDir, "manifest.jsonl")
	manifestFile, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}

	return &RunSession{
		ID:            sessionID,
		StateDir:      stateDir,
		SessionDir:    sessionDir,
		ManifestFile:  manifestFile,
		InputDir:      inputDir,
		usedFilenames: make(map[string]int),
	}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// LogSessionStart writes the session start event to manifest
func (s *RunSession) LogSessionStart(totalFiles int) error {
	s.stats.TotalScanned = totalFiles
	return s.writeEvent(ManifestEvent{
		Event:      "session_start",
		Ts:         now(),
		RunID:      s.ID,
		InputDir:   s.InputDir,
		TotalFiles: totalFiles,
	})
}

// LogDuplicateRemoved logs a deleted byte-identical copy
func (s *RunSession) LogDuplicateRemoved(removed ScoredAsset, survivor, hash string) error {
	s.stats.DuplicatesRemoved++
	return s.writeEvent(ManifestEvent{
		Event:    "duplicate_removed",
		Ts:       now(),
		Src:      removed.Path,
		Survivor: survivor,
		Hash:     hash,
		Size:     removed.Size,
	})
}

// LogStamped logs a file whose metadata was rewritten
func (s *RunSession) LogStamped(path string, date CandidateDate) error {
	s.stats.Stamped++
	return s.writeEvent(ManifestEvent{
		Event:  "stamped",
		Ts:     now(),
		Src:    path,
		Date:   date.Time.Format(time.RFC3339),
		Source: string(date.Source),
	})
}

// LogVoiceMemo logs an audio-only recording that was renamed or converted
func (s *RunSession) LogVoiceMemo(res *VoiceMemoResult) error {
	s.stats.VoiceMemos++
	return s.writeEvent(ManifestEvent{
		Event: "voice_memo",
		Ts:    now(),
		Src:   res.Source,
		Dest:  res.Path,
	})
}

// LogComposited logs a finished overlay pair
func (s *RunSession) LogComposited(res *CompositeResult, browseName string) error {
	s.stats.Composited++
	ev := ManifestEvent{
		Event:  "composited",
		Ts:     now(),
		Src:    res.Pair.Main.Path,
		Dest:   res.OutputPath,
		Browse: browseName,
	}
	if res.Metadata.HasDate() {
		ev.Date = res.Metadata.Date.Time.Format(time.RFC3339)
		ev.Source = string(res.Metadata.Date.Source)
	}
	return s.writeEvent(ev)
}

// LogDetailedError logs a categorized error with full details
func (s *RunSession) LogDetailedError(src string, procErr *ProcessError) error {
	s.stats.Errors++

	event := ManifestEvent{
		Event:           "error",
		Ts:              now(),
		Src:             src,
		Error:           procErr.OriginalErr.Error(),
		ErrorOp:         procErr.Op,
		ErrorCategory:   string(procErr.Category),
		ErrorSeverity:   string(procErr.Severity),
		ErrorSuggestion: procErr.Suggestion,
	}
	if dest, ok := procErr.Context["dest"]; ok {
		event.Dest = dest
	}
	return s.writeEvent(event)
}

// LogSessionEnd writes the session end event to manifest
func (s *RunSession) LogSessionEnd() error {
	return s.writeEvent(ManifestEvent{
		Event:             "session_end",
		Ts:                now(),
		RunID:             s.ID,
		TotalFiles:        s.stats.TotalScanned,
		DuplicatesRemoved: s.stats.DuplicatesRemoved,
		Stamped:           s.stats.Stamped,
		VoiceMemos:        s.stats.VoiceMemos,
		Composited:        s.stats.Composited,
		ErrorCount:        s.stats.Errors,
	})
}

// CreateHardlink creates a hardlink in the session directory for browsing
// Returns the basename used in the session directory (with collision suffix if needed)
func (s *RunSession) CreateHardlink(filePath string) (string, error) {
	basename := filepath.Base(filePath)

	count, exists := s.usedFilenames[basename]
	finalBasename := basename
	if exists {
		ext := filepath.Ext(basename)
		nameNoExt := strings.TrimSuffix(basename, ext)
		finalBasename = fmt.Sprintf("%s_%d%s", nameNoExt, count+1, ext)
	}
	s.usedFilenames[basename] = count + 1

	browsePath := filepath.Join(s.SessionDir, finalBasename)
	if err := os.Link(filePath, browsePath); err != nil {
		return "", fmt.Errorf("hardlink failed: %w", err)
	}
	return finalBasename, nil
}

// GetStats returns the current session statistics
func (s *RunSession) GetStats() RunStats {
	return s.stats
}

// Close closes the manifest file and session
func (s *RunSession) Close() error {
	if s.ManifestFile != nil {
		return s.ManifestFile.Close()
	}
	return nil
}

// writeEvent writes a manifest event as a JSON line
func (s *RunSession) writeEvent(event ManifestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.ManifestFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to manifest: %w", err)
	}
	// Flush to ensure data is written
	return s.ManifestFile.Sync()
}
