package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
)

// Provenance records where a candidate date came from.
type Provenance string

const (
	FromFilename   Provenance = "filename"
	FromImageTag   Provenance = "embedded-image-tag"
	FromVideoTag   Provenance = "embedded-video-tag"
	FromFilesystem Provenance = "filesystem"
)

const (
	exifDateLayout     = "2006:01:02 15:04:05"
	filenameDateLayout = "2006-01-02"
	videoDateLayout    = "2006-01-02T15:04:05"
)

var filenameDatePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(?:[_-]|$)`)

// CandidateDate is a timestamp and where it was read from. The zero value
// means "no date".
type CandidateDate struct {
	Time   time.Time
	Source Provenance
}

func (c CandidateDate) IsZero() bool {
	return c.Time.IsZero()
}

func (c CandidateDate) String() string {
	if c.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s (%s)", c.Time.Format(time.RFC3339), c.Source)
}

// Earliest returns the minimum of the non-zero candidates. On equal
// instants the first one given wins.
func Earliest(candidates ...CandidateDate) CandidateDate {
	var best CandidateDate
	for _, c := range candidates {
		if c.IsZero() {
			continue
		}
		if best.IsZero() || c.Time.Before(best.Time) {
			best = c
		}
	}
	return best
}

// FilenameDate parses a leading YYYY-MM-DD token from the file's stem. The
// token must be followed by '_', '-' or the end of the stem.
func FilenameDate(path string) CandidateDate {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	m := filenameDatePattern.FindStringSubmatch(stem)
	if m == nil {
		return CandidateDate{}
	}
	t, err := time.ParseInLocation(filenameDateLayout, m[1], time.Local)
	if err != nil {
		return CandidateDate{}
	}
	return CandidateDate{Time: t, Source: FromFilename}
}

// parseExifDate accepts "YYYY:MM:DD HH:MM:SS" with anything after the
// seconds (sub-seconds, offsets) ignored.
func parseExifDate(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if len(s) > len(exifDateLayout) {
		s = s[:len(exifDateLayout)]
	}
	return time.ParseInLocation(exifDateLayout, s, time.Local)
}

// parseVideoDate truncates an ffprobe creation_time to whole seconds and
// parses it as UTC.
func parseVideoDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(videoDateLayout) {
		s = s[:len(videoDateLayout)]
	}
	return time.ParseInLocation(videoDateLayout, s, time.UTC)
}

// DateExtractor derives capture dates from filenames, embedded image tags and
// container tags. It never mutates files.
type DateExtractor struct {
	tags   TagReader
	prober VideoProber
	logger *zap.Logger
}

// NewDateExtractor wires the extractor. tags may be nil, in which case only
// natively decodable EXIF is read.
func NewDateExtractor(tags TagReader, prober VideoProber, logger *zap.Logger) *DateExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DateExtractor{
		tags:   tags,
		prober: prober,
		logger: logger.With(zap.String("component", "dates")),
	}
}

// goexif field names in priority order.
var exifDateFields = []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime}

// ImageDate returns the first parseable embedded date in priority order
// original, digitized, modified.
func (d *DateExtractor) ImageDate(path string) CandidateDate {
	if c := d.nativeImageDate(path); !c.IsZero() {
		return c
	}
	if d.tags == nil {
		return CandidateDate{}
	}
	tags, err := d.tags.ReadTags(path)
	if err != nil {
		d.logger.Debug("tag read failed", zap.String("path", path), zap.Error(err))
		return CandidateDate{}
	}
	for _, key := range ImageDateKeys {
		raw, ok := tags[key]
		if !ok || raw == "" {
			continue
		}
		t, err := parseExifDate(raw)
		if err != nil {
			d.logParseFailure(path, key, err)
			continue
		}
		return CandidateDate{Time: t, Source: FromImageTag}
	}
	return CandidateDate{}
}

func (d *DateExtractor) nativeImageDate(path string) CandidateDate {
	f, err := os.Open(path)
	if err != nil {
		return CandidateDate{}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if x == nil {
		// PNG, WebP and files without an APP1 segment land here.
		if err != nil {
			d.logger.Debug("no native exif", zap.String("path", path), zap.Error(err))
		}
		return CandidateDate{}
	}

	for _, field := range exifDateFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			d.logParseFailure(path, string(field), err)
			continue
		}
		t, err := parseExifDate(raw)
		if err != nil {
			d.logParseFailure(path, string(field), err)
			continue
		}
		return CandidateDate{Time: t, Source: FromImageTag}
	}
	return CandidateDate{}
}

func (d *DateExtractor) logParseFailure(path, key string, err error) {
	pe := MetadataParseError(path, "parse "+key, err)
	d.logger.Debug("date tag skipped",
		zap.String("path", path),
		zap.String("op", pe.Op),
		zap.String("category", string(pe.Category)),
		zap.Error(err))
}

// VideoDate reads creation_time from the container. A missing or malformed
// tag is not an error; a failing probe is.
func (d *DateExtractor) VideoDate(ctx context.Context, path string) (CandidateDate, error) {
	if d.prober == nil {
		return CandidateDate{}, nil
	}
	res, err := d.prober.Probe(ctx, path)
	if err != nil {
		var pe *ProcessError
		if errors.As(err, &pe) {
			return CandidateDate{}, err
		}
		return CandidateDate{}, ExternalToolError(path, "ffprobe", err)
	}
	raw := res.Format.Tag(VideoCreationTimeKey)
	if raw == "" {
		return CandidateDate{}, nil
	}
	t, err := parseVideoDate(raw)
	if err != nil {
		d.logParseFailure(path, VideoCreationTimeKey, err)
		return CandidateDate{}, nil
	}
	return CandidateDate{Time: t, Source: FromVideoTag}, nil
}

// EmbeddedDate dispatches on the asset kind.
func (d *DateExtractor) EmbeddedDate(ctx context.Context, a Asset) (CandidateDate, error) {
	if a.Kind == KindVideo {
		return d.VideoDate(ctx, a.Path)
	}
	return d.ImageDate(a.Path), nil
}

// Candidate is the earliest of the filename date and the embedded date.
// Filesystem times are not consulted.
func (d *DateExtractor) Candidate(ctx context.Context, a Asset) (CandidateDate, error) {
	embedded, err := d.EmbeddedDate(ctx, a)
	if err != nil {
		return CandidateDate{}, err
	}
	return Earliest(FilenameDate(a.Path), embedded), nil
}

// Score is Candidate with the filesystem fallback applied.
func (d *DateExtractor) Score(ctx context.Context, a Asset) (CandidateDate, error) {
	c, err := d.Candidate(ctx, a)
	if err != nil {
		return CandidateDate{}, err
	}
	if !c.IsZero() {
		return c, nil
	}
	return FilesystemDate(a.Path)
}

// FilesystemDate is min(creation or change time, modification time).
func FilesystemDate(path string) (CandidateDate, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return CandidateDate{}, IOError(path, "stat", err)
	}
	mod := fi.ModTime()
	if created, ok := fileCreationTime(path, fi); ok && created.Before(mod) {
		return CandidateDate{Time: created, Source: FromFilesystem}, nil
	}
	return CandidateDate{Time: mod, Source: FromFilesystem}, nil
}
