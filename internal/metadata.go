package internal

import (
	"sort"
	"strings"
	"time"
)

// Tags is an opaque key/value map of embedded metadata. Keys are bare tag
// names without a group prefix.
type Tags map[string]string

// Clone returns a copy that is safe to mutate.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Keys returns the tag names sorted.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ImageDateKeys are the exiftool names of every EXIF date slot, in the
// priority order used when reading.
var ImageDateKeys = []string{"DateTimeOriginal", "CreateDate", "ModifyDate"}

// VideoCreationTimeKey is the container tag carrying the capture time.
const VideoCreationTimeKey = "creation_time"

const videoStampLayout = "2006-01-02T15:04:05.000000Z"

// dateKeys covers every spelling of a date-bearing key; all of them are
// replaced by the reconciled date.
var dateKeys = map[string]struct{}{
	"datetimeoriginal":  {},
	"createdate":        {},
	"modifydate":        {},
	"datetime":          {},
	"datetimedigitized": {},
	"creation_time":     {},
}

// IsDateKey reports whether key carries a capture date.
func IsDateKey(key string) bool {
	_, ok := dateKeys[strings.ToLower(key)]
	return ok
}

// Tags that describe the old file's structure and must not be carried onto a
// re-encoded output.
var structuralKeys = map[string]struct{}{
	"exifimagewidth":    {},
	"exifimageheight":   {},
	"imagewidth":        {},
	"imageheight":       {},
	"thumbnailimage":    {},
	"thumbnailoffset":   {},
	"thumbnaillength":   {},
	"major_brand":       {},
	"minor_version":     {},
	"compatible_brands": {},
	"encoder":           {},
	"handler_name":      {},
	"duration":          {},
}

// AuxiliaryTags drops date keys, structural keys and binary payloads.
func AuxiliaryTags(tags Tags) Tags {
	out := make(Tags)
	for k, v := range tags {
		if IsDateKey(k) {
			continue
		}
		if _, skip := structuralKeys[strings.ToLower(k)]; skip {
			continue
		}
		if strings.HasPrefix(v, "(Binary data") {
			continue
		}
		out[k] = v
	}
	return out
}

// ReconciledMetadata is the chosen capture date plus auxiliary tags for one
// logical asset. A zero Date means no usable date was found.
type ReconciledMetadata struct {
	Date CandidateDate
	Tags Tags
}

// HasDate reports whether a date will be stamped.
func (m ReconciledMetadata) HasDate() bool {
	return !m.Date.IsZero()
}

// Merge reconciles primary with secondary: the earliest date wins, secondary
// tags are added only when absent from primary, date keys never survive from
// either side. When sameNamespace is false the secondary's tags are ignored.
func Merge(primary, secondary ReconciledMetadata, sameNamespace bool) ReconciledMetadata {
	out := ReconciledMetadata{
		Date: Earliest(primary.Date, secondary.Date),
		Tags: make(Tags),
	}
	for k, v := range primary.Tags {
		if !IsDateKey(k) {
			out.Tags[k] = v
		}
	}
	if !sameNamespace {
		return out
	}
	for k, v := range secondary.Tags {
		if IsDateKey(k) {
			continue
		}
		if _, ok := out.Tags[k]; !ok {
			out.Tags[k] = v
		}
	}
	return out
}

// FinalTags renders the tag set to write for kind: auxiliary tags plus every
// date slot set to the reconciled date. Without a date only auxiliary tags
// are returned.
func (m ReconciledMetadata) FinalTags(kind MediaKind) Tags {
	out := make(Tags, len(m.Tags)+len(ImageDateKeys))
	for k, v := range m.Tags {
		if !IsDateKey(k) {
			out[k] = v
		}
	}
	if !m.HasDate() {
		return out
	}
	switch kind {
	case KindVideo:
		out[VideoCreationTimeKey] = FormatVideoDate(m.Date.Time)
	default:
		v := FormatExifDate(m.Date.Time)
		for _, k := range ImageDateKeys {
			out[k] = v
		}
	}
	return out
}

// FormatExifDate renders t in local time the way EXIF stores dates.
func FormatExifDate(t time.Time) string {
	return t.In(time.Local).Format(exifDateLayout)
}

// FormatVideoDate renders t as an ffmpeg creation_time value.
func FormatVideoDate(t time.Time) string {
	return t.UTC().Format(videoStampLayout)
}
