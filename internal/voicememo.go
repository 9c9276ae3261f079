package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// VoiceMemoResult reports what happened to one audio-only recording.
type VoiceMemoResult struct {
	Source    string
	Path      string // final location: renamed .mp4 or converted .mp3
	Renamed   bool
	Converted bool
}

// VoiceMemos finds .mp4 survivors without a video stream, tags them with a
// -voicememo suffix and optionally converts them to MP3.
type VoiceMemos struct {
	prober     VideoProber
	video      VideoTranscoder
	dates      *DateExtractor
	scratchDir string
	convert    bool
	logger     *zap.Logger
}

func NewVoiceMemos(prober VideoProber, video VideoTranscoder, dates *DateExtractor, scratchDir string, convert bool, logger *zap.Logger) *VoiceMemos {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoiceMemos{
		prober:     prober,
		video:      video,
		dates:      dates,
		scratchDir: scratchDir,
		convert:    convert,
		logger:     logger.With(zap.String("component", "voicememo")),
	}
}

// IsVoiceMemo reports whether the container has no video stream.
func (v *VoiceMemos) IsVoiceMemo(ctx context.Context, a Asset) (bool, error) {
	if a.Kind != KindVideo {
		return false, nil
	}
	res, err := v.prober.Probe(ctx, a.Path)
	if err != nil {
		return false, err
	}
	return res.VideoStreamCount() == 0, nil
}

// VoiceMemoPath is the renamed location of an audio-only recording.
func VoiceMemoPath(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if strings.HasSuffix(strings.ToLower(stem), suffixVoiceMemo) {
		return path
	}
	return stem + suffixVoiceMemo + ext
}

// Date is the capture date later applied to a converted memo. Read it
// before conversion drops the container tags.
func (v *VoiceMemos) Date(ctx context.Context, a Asset) CandidateDate {
	if v.dates == nil {
		return FilenameDate(a.Path)
	}
	d, err := v.dates.Candidate(ctx, a)
	if err != nil {
		return FilenameDate(a.Path)
	}
	return d
}

// Process renames a known voice memo and, when enabled, converts it to MP3
// with date applied to the file times.
func (v *VoiceMemos) Process(ctx context.Context, a Asset, date CandidateDate) (*VoiceMemoResult, error) {
	res := &VoiceMemoResult{Source: a.Path, Path: a.Path}
	if target := VoiceMemoPath(a.Path); target != a.Path {
		target = safeCopyPath(target)
		if err := os.Rename(a.Path, target); err != nil {
			return nil, IOError(a.Path, "rename", err)
		}
		res.Path = target
		res.Renamed = true
	}

	if !v.convert {
		return res, nil
	}

	mp3 := safeCopyPath(strings.TrimSuffix(res.Path, filepath.Ext(res.Path)) + ".mp3")
	if err := v.extract(ctx, res.Path, mp3); err != nil {
		return res, err
	}
	if !date.IsZero() {
		if err := os.Chtimes(mp3, date.Time, date.Time); err != nil {
			return res, IOError(mp3, "chtimes", err)
		}
	}
	if err := os.Remove(res.Path); err != nil {
		return res, IOError(res.Path, "remove", err)
	}
	res.Path = mp3
	res.Converted = true

	v.logger.Info("voice memo converted",
		zap.String("source", a.Path),
		zap.String("output", mp3),
		zap.Stringer("date", date))
	return res, nil
}

func (v *VoiceMemos) extract(ctx context.Context, input, output string) error {
	if err := os.MkdirAll(v.scratchDir, 0755); err != nil {
		return IOError(v.scratchDir, "mkdir", err)
	}
	dir, err := os.MkdirTemp(v.scratchDir, "voicememo-*")
	if err != nil {
		return IOError(v.scratchDir, "mkdir", err)
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, filepath.Base(output))
	if err := v.video.ExtractAudio(ctx, input, tmp); err != nil {
		return err
	}
	if err := replaceFile(tmp, output); err != nil {
		return IOError(output, "replace", err)
	}
	return nil
}
