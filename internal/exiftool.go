package internal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
)

// TagReader reads embedded image tags. Missing tags are simply absent from
// the result.
type TagReader interface {
	ReadTags(path string) (Tags, error)
}

// TagWriter writes embedded image tags in a single save.
type TagWriter interface {
	WriteTags(path string, tags Tags) error
}

// TagStore is both.
type TagStore interface {
	TagReader
	TagWriter
}

// exifGroup is the family-0 group every tag is read from and written to.
const exifGroup = "EXIF"

// ExifTool is a TagStore backed by one long-running exiftool process, started
// on first use.
type ExifTool struct {
	binary string
	et     *exiftool.Exiftool
	mu     sync.Mutex
}

func NewExifTool(binary string) *ExifTool {
	return &ExifTool{binary: strings.TrimSpace(binary)}
}

// Close cleans up the ExifTool process if it was started.
func (s *ExifTool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.et == nil {
		return nil
	}
	err := s.et.Close()
	s.et = nil
	return err
}

// ensureExifTool lazily initializes the ExifTool instance.
func (s *ExifTool) ensureExifTool() (*exiftool.Exiftool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.et != nil {
		return s.et, nil
	}

	opts := []func(*exiftool.Exiftool) error{
		exiftool.PrintGroupNames("0"),
		exiftool.NoPrintConversion(),
	}
	if s.binary != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(s.binary))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	s.et = et
	return s.et, nil
}

// ReadTags returns scalar EXIF tags with their group prefix stripped, plus
// date tags from any other group. When a date name appears in several
// groups the EXIF one wins.
func (s *ExifTool) ReadTags(path string) (Tags, error) {
	et, err := s.ensureExifTool()
	if err != nil {
		return nil, ExternalToolError(path, "exiftool", err)
	}

	infos := et.ExtractMetadata(path)
	if len(infos) == 0 {
		return Tags{}, nil
	}
	if infos[0].Err != nil {
		return nil, ExternalToolError(path, "exiftool", infos[0].Err)
	}
	return flattenFields(infos[0].Fields), nil
}

func flattenFields(fields map[string]interface{}) Tags {
	tags := make(Tags)
	fromExif := make(map[string]bool)
	for key, raw := range fields {
		group, name, found := strings.Cut(key, ":")
		if !found {
			// SourceFile and friends carry no group.
			continue
		}
		if group == "File" || group == "ExifTool" || group == "Composite" {
			continue
		}
		isExif := group == exifGroup
		if !isExif && !IsDateKey(name) {
			// Only EXIF tags can be written back to the EXIF group.
			continue
		}
		val, ok := scalarString(raw)
		if !ok {
			continue
		}
		if _, exists := tags[name]; exists && (fromExif[name] || !isExif) {
			continue
		}
		tags[name] = val
		fromExif[name] = isExif
	}
	return tags
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// WriteTags stores tags into the EXIF group, overwriting the file in place.
func (s *ExifTool) WriteTags(path string, tags Tags) error {
	if len(tags) == 0 {
		return nil
	}
	et, err := s.ensureExifTool()
	if err != nil {
		return ExternalToolError(path, "exiftool", err)
	}

	md := exiftool.EmptyFileMetadata()
	md.File = path
	for _, k := range tags.Keys() {
		md.SetString(exifGroup+":"+k, tags[k])
	}
	batch := []exiftool.FileMetadata{md}
	et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return ExternalToolError(path, "exiftool", batch[0].Err)
	}
	return nil
}
