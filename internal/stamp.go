package internal

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Stamper applies reconciled metadata to a file: embedded tags first, then
// filesystem times.
type Stamper struct {
	tags       TagWriter
	video      VideoTranscoder
	scratchDir string
	logger     *zap.Logger
}

func NewStamper(tags TagWriter, video VideoTranscoder, scratchDir string, logger *zap.Logger) *Stamper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stamper{
		tags:       tags,
		video:      video,
		scratchDir: scratchDir,
		logger:     logger.With(zap.String("component", "stamper")),
	}
}

// Stamp writes md into the asset. Running it twice with the same metadata
// leaves the file in the same state.
func (s *Stamper) Stamp(ctx context.Context, a Asset, md ReconciledMetadata) error {
	final := md.FinalTags(a.Kind)
	if len(final) == 0 {
		return nil
	}

	switch a.Kind {
	case KindVideo:
		if err := s.stampVideo(ctx, a.Path, final); err != nil {
			return err
		}
	default:
		if err := s.tags.WriteTags(a.Path, final); err != nil {
			return err
		}
	}

	if md.HasDate() {
		t := md.Date.Time
		if err := os.Chtimes(a.Path, t, t); err != nil {
			return IOError(a.Path, "chtimes", err)
		}
	}

	s.logger.Debug("stamped",
		zap.String("path", a.Path),
		zap.Stringer("date", md.Date),
		zap.Int("tags", len(final)))
	return nil
}

// Touch sets only the filesystem times, for outputs whose tags were written
// while they were produced.
func (s *Stamper) Touch(a Asset, md ReconciledMetadata) error {
	if !md.HasDate() {
		return nil
	}
	t := md.Date.Time
	if err := os.Chtimes(a.Path, t, t); err != nil {
		return IOError(a.Path, "chtimes", err)
	}
	return nil
}

// stampVideo rewrites the container into scratch space and moves the result
// over the original.
func (s *Stamper) stampVideo(ctx context.Context, path string, tags Tags) error {
	if err := os.MkdirAll(s.scratchDir, 0755); err != nil {
		return IOError(s.scratchDir, "mkdir", err)
	}
	dir, err := os.MkdirTemp(s.scratchDir, "stamp-*")
	if err != nil {
		return IOError(s.scratchDir, "mkdir", err)
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, filepath.Base(path))
	if err := s.video.RewriteMetadata(ctx, path, tmp, tags); err != nil {
		return err
	}
	if err := replaceFile(tmp, path); err != nil {
		return IOError(path, "replace", err)
	}
	return nil
}
