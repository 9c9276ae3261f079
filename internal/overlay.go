package internal

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// OverlayPair is a main asset and the overlay drawn on top of it.
type OverlayPair struct {
	Identifier string
	Main       Asset
	Overlay    Asset
}

// PairWarning explains why an asset with a pairing role was not paired.
type PairWarning struct {
	Asset  Asset
	Reason string
}

// CompositeResult describes the files produced for one pair.
type CompositeResult struct {
	Pair           OverlayPair
	OriginalPath   string
	OutputPath     string
	Metadata       ReconciledMetadata
	OverlayRemoved bool
	StampErr       error
}

// compositableImageExts are the main-image formats the encoder can write back.
var compositableImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Pair groups survivors by identifier. Each identifier yields at most one
// pair; everything else is returned untouched in passthrough, in input order.
func Pair(survivors []Asset) (pairs []OverlayPair, passthrough []Asset, warnings []PairWarning) {
	type slot struct {
		mains    []Asset
		overlays []Asset
	}
	var ids []string
	slots := make(map[string]*slot)
	paired := make(map[string]bool)

	for _, a := range survivors {
		if a.Identifier == "" || a.Role == RoleStandalone {
			continue
		}
		s, ok := slots[a.Identifier]
		if !ok {
			s = &slot{}
			slots[a.Identifier] = s
			ids = append(ids, a.Identifier)
		}
		if a.Role == RoleMain {
			s.mains = append(s.mains, a)
		} else {
			s.overlays = append(s.overlays, a)
		}
	}

	for _, id := range ids {
		s := slots[id]
		var main *Asset
		for i := range s.mains {
			m := s.mains[i]
			if m.Kind == KindImage && !compositableImageExts[m.Ext()] {
				warnings = append(warnings, PairWarning{Asset: m, Reason: "main image format cannot be re-encoded"})
				continue
			}
			if main != nil {
				warnings = append(warnings, PairWarning{Asset: m, Reason: "extra main for identifier"})
				continue
			}
			main = &s.mains[i]
		}
		if main == nil {
			for _, o := range s.overlays {
				warnings = append(warnings, PairWarning{Asset: o, Reason: "no main for overlay"})
			}
			continue
		}

		var overlay *Asset
		for i := range s.overlays {
			o := s.overlays[i]
			if !overlayCompatible(*main, o) {
				warnings = append(warnings, PairWarning{Asset: o, Reason: fmt.Sprintf("%s overlay cannot be drawn on a %s main", o.Kind, main.Kind)})
				continue
			}
			if overlay != nil {
				warnings = append(warnings, PairWarning{Asset: o, Reason: "extra overlay for identifier"})
				continue
			}
			overlay = &s.overlays[i]
		}
		if overlay == nil {
			continue
		}
		pairs = append(pairs, OverlayPair{Identifier: id, Main: *main, Overlay: *overlay})
		paired[main.Path] = true
		paired[overlay.Path] = true
	}

	for _, a := range survivors {
		if !paired[a.Path] {
			passthrough = append(passthrough, a)
		}
	}
	return pairs, passthrough, warnings
}

func overlayCompatible(main, overlay Asset) bool {
	if main.Kind == KindImage {
		return overlay.Kind == KindImage
	}
	return true
}

// Compositor merges pairs into a single output and carries their metadata
// over.
type Compositor struct {
	dates       *DateExtractor
	tags        TagReader
	prober      VideoProber
	video       VideoTranscoder
	stamper     *Stamper
	scratchDir  string
	jpegQuality int
	logger      *zap.Logger
}

// CompositorOptions bundles the collaborators a Compositor needs.
type CompositorOptions struct {
	Dates       *DateExtractor
	Tags        TagReader
	Prober      VideoProber
	Video       VideoTranscoder
	Stamper     *Stamper
	ScratchDir  string
	JPEGQuality int
	Logger      *zap.Logger
}

func NewCompositor(opts CompositorOptions) *Compositor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	q := opts.JPEGQuality
	if q <= 0 || q > 100 {
		q = 95
	}
	return &Compositor{
		dates:       opts.Dates,
		tags:        opts.Tags,
		prober:      opts.Prober,
		video:       opts.Video,
		stamper:     opts.Stamper,
		scratchDir:  opts.ScratchDir,
		jpegQuality: q,
		logger:      logger.With(zap.String("component", "compositor")),
	}
}

// OutputPaths returns where the renamed main and the composite will live.
func OutputPaths(main Asset) (original, composite string) {
	dir := filepath.Dir(main.Path)
	name := filepath.Base(main.Path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(strings.ToLower(stem), suffixMain) {
		stem = stem[:len(stem)-len(suffixMain)]
	}
	return filepath.Join(dir, stem+suffixOriginal+ext), filepath.Join(dir, stem+suffixWithOverlay+ext)
}

// Metadata reconciles the pair's dates and tags from the files as they are
// now. Call it before any rename.
func (c *Compositor) Metadata(ctx context.Context, p OverlayPair) ReconciledMetadata {
	main := ReconciledMetadata{Date: c.candidate(ctx, p.Main), Tags: c.auxTags(ctx, p.Main)}
	overlay := ReconciledMetadata{Date: c.candidate(ctx, p.Overlay), Tags: c.auxTags(ctx, p.Overlay)}
	return Merge(main, overlay, p.Main.Kind == p.Overlay.Kind)
}

// Composite renames the main to -original, writes the -with-overlay output,
// stamps it with md and removes the overlay. md comes from Metadata, taken
// before the run mutated anything. Partial outputs are left in place on
// failure.
func (c *Compositor) Composite(ctx context.Context, p OverlayPair, md ReconciledMetadata) (*CompositeResult, error) {
	if err := c.preflight(p); err != nil {
		return nil, err
	}

	originalPath, outputPath := OutputPaths(p.Main)
	originalPath = safeCopyPath(originalPath)
	outputPath = safeCopyPath(outputPath)

	res := &CompositeResult{Pair: p, OriginalPath: originalPath, OutputPath: outputPath, Metadata: md}

	if err := os.Rename(p.Main.Path, originalPath); err != nil {
		return nil, IOError(p.Main.Path, "rename", err)
	}

	out := Asset{Path: outputPath, Kind: p.Main.Kind, Identifier: p.Identifier, Role: RoleStandalone}
	switch p.Main.Kind {
	case KindVideo:
		if err := c.compositeVideo(ctx, originalPath, p.Overlay.Path, outputPath, md); err != nil {
			return res, err
		}
		res.StampErr = c.stamper.Touch(out, md)
	default:
		if err := c.compositeImageFile(originalPath, p.Overlay.Path, outputPath); err != nil {
			return res, err
		}
		res.StampErr = c.stamper.Stamp(ctx, out, md)
	}
	if res.StampErr != nil {
		c.logger.Warn("composite not stamped",
			zap.String("path", outputPath),
			zap.String("op", "stamp"),
			zap.Error(res.StampErr))
	}

	if err := os.Remove(p.Overlay.Path); err != nil {
		return res, IOError(p.Overlay.Path, "remove overlay", err)
	}
	res.OverlayRemoved = true

	c.logger.Info("composited",
		zap.String("identifier", p.Identifier),
		zap.String("output", outputPath),
		zap.Stringer("date", md.Date))
	return res, nil
}

// preflight checks content types so a mislabelled file fails before any
// rename happens.
func (c *Compositor) preflight(p OverlayPair) error {
	want := map[string][]string{
		p.Main.Path:    {string(p.Main.Kind) + "/"},
		p.Overlay.Path: {"image/"},
	}
	if p.Main.Kind == KindVideo {
		want[p.Overlay.Path] = []string{"image/", "video/"}
	}
	for _, path := range []string{p.Main.Path, p.Overlay.Path} {
		mt, err := mimetype.DetectFile(path)
		if err != nil {
			return IOError(path, "detect", err)
		}
		ok := false
		for _, prefix := range want[path] {
			if strings.HasPrefix(mt.String(), prefix) {
				ok = true
			}
		}
		if !ok {
			return DecodeError(path, "detect", fmt.Errorf("content is %s", mt.String()))
		}
	}
	return nil
}

func (c *Compositor) candidate(ctx context.Context, a Asset) CandidateDate {
	if c.dates == nil {
		return FilenameDate(a.Path)
	}
	d, err := c.dates.Candidate(ctx, a)
	if err != nil {
		c.logger.Warn("date unavailable",
			zap.String("path", a.Path),
			zap.String("op", "candidate"),
			zap.Error(err))
		return FilenameDate(a.Path)
	}
	return d
}

func (c *Compositor) auxTags(ctx context.Context, a Asset) Tags {
	switch a.Kind {
	case KindVideo:
		if c.prober == nil {
			return Tags{}
		}
		res, err := c.prober.Probe(ctx, a.Path)
		if err != nil {
			c.logger.Debug("container tags unavailable", zap.String("path", a.Path), zap.Error(err))
			return Tags{}
		}
		return AuxiliaryTags(Tags(res.Format.Tags))
	default:
		if c.tags == nil {
			return Tags{}
		}
		tags, err := c.tags.ReadTags(a.Path)
		if err != nil {
			c.logger.Debug("image tags unavailable", zap.String("path", a.Path), zap.Error(err))
			return Tags{}
		}
		return AuxiliaryTags(tags)
	}
}

func (c *Compositor) compositeVideo(ctx context.Context, main, overlay, output string, md ReconciledMetadata) error {
	if err := os.MkdirAll(c.scratchDir, 0755); err != nil {
		return IOError(c.scratchDir, "mkdir", err)
	}
	dir, err := os.MkdirTemp(c.scratchDir, "composite-*")
	if err != nil {
		return IOError(c.scratchDir, "mkdir", err)
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, filepath.Base(output))
	if err := c.video.Overlay(ctx, main, overlay, tmp, md.FinalTags(KindVideo)); err != nil {
		return err
	}
	if err := replaceFile(tmp, output); err != nil {
		return IOError(output, "replace", err)
	}
	return nil
}

func (c *Compositor) compositeImageFile(mainPath, overlayPath, output string) error {
	mainImg, err := imaging.Open(mainPath)
	if err != nil {
		return DecodeError(mainPath, "decode", err)
	}
	overlayImg, err := imaging.Open(overlayPath)
	if err != nil {
		return DecodeError(overlayPath, "decode", err)
	}
	format, err := imaging.FormatFromFilename(output)
	if err != nil {
		return DecodeError(output, "encode", err)
	}

	composed := CompositeImages(mainImg, overlayImg, format != imaging.JPEG)

	tmp := output + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return IOError(tmp, "create", err)
	}
	if err := imaging.Encode(f, composed, format, imaging.JPEGQuality(c.jpegQuality)); err != nil {
		f.Close()
		os.Remove(tmp)
		return DecodeError(output, "encode", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return IOError(tmp, "close", err)
	}
	if err := os.Rename(tmp, output); err != nil {
		return IOError(output, "rename", err)
	}
	return nil
}

// CompositeImages draws overlay over main, resizing the overlay to the
// main's dimensions when they differ. Without keepAlpha the result is
// flattened onto opaque white.
func CompositeImages(main, overlay image.Image, keepAlpha bool) *image.NRGBA {
	base := imaging.Clone(main)
	w, h := base.Bounds().Dx(), base.Bounds().Dy()

	var top *image.NRGBA
	if overlay.Bounds().Dx() != w || overlay.Bounds().Dy() != h {
		top = imaging.Resize(overlay, w, h, imaging.Lanczos)
	} else {
		top = imaging.Clone(overlay)
	}

	composed := imaging.Overlay(base, top, image.Pt(0, 0), 1.0)
	if keepAlpha {
		return composed
	}
	bg := imaging.New(w, h, color.White)
	return imaging.Overlay(bg, composed, image.Pt(0, 0), 1.0)
}
