package internal

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MediaKind is the broad media family of an asset.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// Role is the part an asset plays in an overlay pair.
type Role string

const (
	RoleMain       Role = "main"
	RoleOverlay    Role = "overlay"
	RoleStandalone Role = "standalone"
)

// Filename suffixes understood by the export layout.
const (
	suffixMain        = "-main"
	suffixOverlay     = "-overlay"
	suffixOriginal    = "-original"
	suffixWithOverlay = "-with-overlay"
	suffixVoiceMemo   = "-voicememo"
)

// Asset is a single media file in the export.
type Asset struct {
	Path       string
	Kind       MediaKind
	Identifier string // lowercase; empty when the name carries none
	Role       Role
	VoiceMemo  bool
}

// Ext returns the lowercase extension including the dot.
func (a Asset) Ext() string {
	return strings.ToLower(filepath.Ext(a.Path))
}

func (a Asset) String() string {
	return fmt.Sprintf("%s(%s/%s)", filepath.Base(a.Path), a.Kind, a.Role)
}

var uuidPattern = regexp.MustCompile(`[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}`)

// KindForExt reports the media kind of ext against the configured allow-lists.
func KindForExt(ext string, cfg *Config) (MediaKind, bool) {
	ext = strings.ToLower(ext)
	for _, e := range cfg.ImageExt {
		if ext == strings.ToLower(e) {
			return KindImage, true
		}
	}
	for _, e := range cfg.VideoExt {
		if ext == strings.ToLower(e) {
			return KindVideo, true
		}
	}
	return "", false
}

// ClassifyAsset builds an Asset from a path. The second return is false when
// the extension is not allow-listed.
func ClassifyAsset(path string, cfg *Config) (Asset, bool) {
	kind, ok := KindForExt(filepath.Ext(path), cfg)
	if !ok {
		return Asset{}, false
	}
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	lower := strings.ToLower(stem)

	a := Asset{Path: path, Kind: kind, Role: RoleStandalone}
	if strings.HasSuffix(lower, suffixVoiceMemo) {
		a.VoiceMemo = true
		lower = strings.TrimSuffix(lower, suffixVoiceMemo)
	}

	// -with-overlay has to be checked before -overlay.
	switch {
	case strings.HasSuffix(lower, suffixWithOverlay):
		lower = strings.TrimSuffix(lower, suffixWithOverlay)
	case strings.HasSuffix(lower, suffixOriginal):
		lower = strings.TrimSuffix(lower, suffixOriginal)
	case strings.HasSuffix(lower, suffixMain):
		a.Role = RoleMain
		lower = strings.TrimSuffix(lower, suffixMain)
	case strings.HasSuffix(lower, suffixOverlay):
		a.Role = RoleOverlay
		lower = strings.TrimSuffix(lower, suffixOverlay)
	}

	a.Identifier = identifierFromStem(lower)
	return a, true
}

// identifierFromStem extracts the pairing token: a UUID when present,
// otherwise whatever follows the leading date token.
func identifierFromStem(stem string) string {
	if m := uuidPattern.FindString(stem); m != "" {
		if id, err := uuid.Parse(m); err == nil {
			return id.String()
		}
	}
	if loc := filenameDatePattern.FindStringIndex(stem); loc != nil {
		stem = stem[loc[1]:]
	}
	return strings.ToLower(strings.Trim(stem, "_- "))
}

// ScanMediaFiles scans input directory recursively for media files based on
// extensions. Order is lexical, which fixes tie-breaks between duplicates.
func ScanMediaFiles(inputDir string, cfg *Config) ([]Asset, error) {
	var assets []Asset
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if a, ok := ClassifyAsset(path, cfg); ok {
			assets = append(assets, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}
	return assets, nil
}
