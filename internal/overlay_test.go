package internal

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"snapsift/internal/ffprobe"
)

func exportAssets(t *testing.T, names ...string) []Asset {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join("/export", n)
	}
	return classifyAll(t, paths...)
}

func TestPair(t *testing.T) {
	tests := []struct {
		name        string
		files       []string
		pairs       int
		passthrough int
		warnings    []string
	}{
		{
			name:  "main and overlay",
			files: []string{"2021-01-10_ABC-main.jpg", "2021-01-10_ABC-overlay.png"},
			pairs: 1,
		},
		{
			name:        "lone overlay",
			files:       []string{"2021-01-10_ABC-overlay.png"},
			passthrough: 1,
			warnings:    []string{"no main for overlay"},
		},
		{
			name:        "lone main",
			files:       []string{"2021-01-10_ABC-main.jpg"},
			passthrough: 1,
		},
		{
			name:        "video overlay on image main",
			files:       []string{"2021-01-10_ABC-main.jpg", "2021-01-10_ABC-overlay.mp4"},
			passthrough: 2,
			warnings:    []string{"video overlay cannot be drawn on a image main"},
		},
		{
			name:  "image overlay on video main",
			files: []string{"2021-01-10_ABC-main.mp4", "2021-01-10_ABC-overlay.png"},
			pairs: 1,
		},
		{
			name:        "extra overlay",
			files:       []string{"2021-01-10_ABC-main.jpg", "2021-01-10_ABC-overlay.png", "2021-01-11_ABC-overlay.webp"},
			pairs:       1,
			passthrough: 1,
			warnings:    []string{"extra overlay for identifier"},
		},
		{
			name:        "webp main cannot be re-encoded",
			files:       []string{"2021-01-10_ABC-main.webp", "2021-01-10_ABC-overlay.png"},
			passthrough: 2,
			warnings:    []string{"main image format cannot be re-encoded", "no main for overlay"},
		},
		{
			name:        "outputs of a finished pair are standalone",
			files:       []string{"2021-01-10_ABC-original.jpg", "2021-01-10_ABC-with-overlay.jpg"},
			passthrough: 2,
		},
		{
			name:  "identifiers compare case-insensitively",
			files: []string{"2020-05-05_3F2504E0-4F89-11D3-9A0C-0305E82C3301-main.jpg", "2020-05-05_3f2504e0-4f89-11d3-9a0c-0305e82c3301-overlay.png"},
			pairs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, passthrough, warnings := Pair(exportAssets(t, tt.files...))
			if len(pairs) != tt.pairs {
				t.Errorf("pairs = %d, want %d", len(pairs), tt.pairs)
			}
			if len(passthrough) != tt.passthrough {
				t.Errorf("passthrough = %d, want %d", len(passthrough), tt.passthrough)
			}
			if len(warnings) != len(tt.warnings) {
				t.Fatalf("warnings = %v, want %v", warnings, tt.warnings)
			}
			for i, w := range tt.warnings {
				if warnings[i].Reason != w {
					t.Errorf("warning %d = %q, want %q", i, warnings[i].Reason, w)
				}
			}
		})
	}
}

func TestOutputPaths(t *testing.T) {
	main, _ := ClassifyAsset("/export/2021-01-10_ABC-main.jpg", testConfig())
	original, composite := OutputPaths(main)
	if original != "/export/2021-01-10_ABC-original.jpg" {
		t.Errorf("original = %s", original)
	}
	if composite != "/export/2021-01-10_ABC-with-overlay.jpg" {
		t.Errorf("composite = %s", composite)
	}
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func checkPixel(t *testing.T, img *image.NRGBA, want color.NRGBA) {
	t.Helper()
	got := img.NRGBAAt(1, 1)
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Errorf("pixel = %v, want %v", got, want)
	}
}

func TestCompositeImages(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	tests := []struct {
		name      string
		overlay   image.Image
		keepAlpha bool
		want      color.NRGBA
	}{
		{"opaque overlay replaces", solidImage(4, 4, blue), true, blue},
		{"transparent overlay keeps main", solidImage(4, 4, color.NRGBA{}), true, red},
		{"half alpha blends", solidImage(4, 4, color.NRGBA{B: 255, A: 128}), true, color.NRGBA{R: 127, B: 128, A: 255}},
		{"smaller overlay is resized", solidImage(2, 2, blue), true, blue},
		{"flattened for jpeg", solidImage(4, 4, color.NRGBA{}), false, red},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompositeImages(solidImage(4, 4, red), tt.overlay, tt.keepAlpha)
			if got.Bounds().Dx() != 4 || got.Bounds().Dy() != 4 {
				t.Fatalf("bounds = %v", got.Bounds())
			}
			checkPixel(t, got, tt.want)
		})
	}
}

func TestCompositeImages_FlattenOntoWhite(t *testing.T) {
	main := solidImage(4, 4, color.NRGBA{R: 255, A: 255})
	main.SetNRGBA(1, 1, color.NRGBA{})
	overlay := solidImage(4, 4, color.NRGBA{})

	got := CompositeImages(main, overlay, false)
	checkPixel(t, got, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
}

func newTestCompositor(tags TagStore, prober VideoProber, video VideoTranscoder, scratch string) *Compositor {
	dates := NewDateExtractor(tags, prober, nil)
	return NewCompositor(CompositorOptions{
		Dates:      dates,
		Tags:       tags,
		Prober:     prober,
		Video:      video,
		Stamper:    NewStamper(tags, video, scratch, nil),
		ScratchDir: scratch,
	})
}

func TestCompositor_ImagePairEndToEnd(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "2021-01-10_ABC-main.jpg")
	overlayPath := filepath.Join(dir, "2021-01-10_ABC-overlay.png")
	writeJPEG(t, mainPath, solidImage(8, 8, color.NRGBA{R: 255, A: 255}))
	writePNG(t, overlayPath, solidImage(8, 8, color.NRGBA{B: 255, A: 128}))

	tags := newFakeTags()
	tags.read["2021-01-10_ABC-overlay.png"] = Tags{"DateTimeOriginal": "2021:01:09 10:00:00"}
	c := newTestCompositor(tags, nil, nil, t.TempDir())

	pairs, _, _ := Pair(classifyAll(t, mainPath, overlayPath))
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(pairs))
	}
	md := c.Metadata(context.Background(), pairs[0])
	want := time.Date(2021, 1, 9, 10, 0, 0, 0, time.Local)
	if !md.Date.Time.Equal(want) {
		t.Fatalf("reconciled date = %v, want %v", md.Date, want)
	}

	res, err := c.Composite(context.Background(), pairs[0], md)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	if res.OriginalPath != filepath.Join(dir, "2021-01-10_ABC-original.jpg") {
		t.Errorf("original = %s", res.OriginalPath)
	}
	if res.OutputPath != filepath.Join(dir, "2021-01-10_ABC-with-overlay.jpg") {
		t.Errorf("output = %s", res.OutputPath)
	}
	if _, err := os.Stat(overlayPath); !os.IsNotExist(err) {
		t.Error("overlay should be deleted")
	}
	if _, err := os.Stat(mainPath); !os.IsNotExist(err) {
		t.Error("main should be renamed")
	}
	if _, err := os.Stat(res.OriginalPath); err != nil {
		t.Errorf("original missing: %v", err)
	}
	if !res.OverlayRemoved || res.StampErr != nil {
		t.Errorf("result = %+v", res)
	}

	written := tags.lastWrite(res.OutputPath)
	if written["DateTimeOriginal"] != "2021:01:09 10:00:00" {
		t.Errorf("stamped tags = %v", written)
	}
	if modTime(t, res.OutputPath) != want.Unix() {
		t.Error("composite mtime not stamped")
	}

	out, err := imaging.Open(res.OutputPath)
	if err != nil {
		t.Fatalf("decode composite: %v", err)
	}
	if out.Bounds().Dx() != 8 {
		t.Errorf("composite size = %v", out.Bounds())
	}

	// A rerun finds nothing left to pair.
	rescanned, err := ScanMediaFiles(dir, testConfig())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if again, _, _ := Pair(rescanned); len(again) != 0 {
		t.Errorf("rerun paired %d assets", len(again))
	}
}

func TestCompositor_VideoPair(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "2021-01-10_V-main.mp4")
	overlayPath := filepath.Join(dir, "2021-01-10_V-overlay.png")
	writeFile(t, mainPath, mp4Bytes("main"))
	writePNG(t, overlayPath, solidImage(4, 4, color.NRGBA{G: 255, A: 255}))

	prober := newFakeProber()
	prober.results["2021-01-10_V-main.mp4"] = ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video"}},
		Format: ffprobe.Format{Tags: map[string]string{
			"creation_time": "2021-01-08T12:00:00.000000Z",
			"title":         "clip",
			"major_brand":   "isom",
		}},
	}
	video := &fakeVideo{}
	c := newTestCompositor(newFakeTags(), prober, video, t.TempDir())

	pairs, _, _ := Pair(classifyAll(t, mainPath, overlayPath))
	md := c.Metadata(context.Background(), pairs[0])
	res, err := c.Composite(context.Background(), pairs[0], md)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	if len(video.calls) != 1 || video.calls[0].op != "overlay" {
		t.Fatalf("calls = %v", video.calls)
	}
	meta := video.calls[0].metadata
	if meta[VideoCreationTimeKey] != "2021-01-08T12:00:00.000000Z" {
		t.Errorf("creation_time = %q", meta[VideoCreationTimeKey])
	}
	if meta["title"] != "clip" {
		t.Errorf("title not carried: %v", meta)
	}
	if _, ok := meta["major_brand"]; ok {
		t.Error("structural tag carried over")
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Errorf("composite missing: %v", err)
	}
	if modTime(t, res.OutputPath) != time.Date(2021, 1, 8, 12, 0, 0, 0, time.UTC).Unix() {
		t.Error("composite mtime not set")
	}
	if _, err := os.Stat(overlayPath); !os.IsNotExist(err) {
		t.Error("overlay should be deleted")
	}
}

func TestCompositor_PreflightRejectsMislabelledMain(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "2021-01-10_ABC-main.jpg")
	overlayPath := filepath.Join(dir, "2021-01-10_ABC-overlay.png")
	writeFile(t, mainPath, mp4Bytes("not a jpeg"))
	writePNG(t, overlayPath, solidImage(2, 2, color.NRGBA{A: 255}))

	c := newTestCompositor(newFakeTags(), nil, nil, t.TempDir())
	pairs, _, _ := Pair(classifyAll(t, mainPath, overlayPath))

	_, err := c.Composite(context.Background(), pairs[0], ReconciledMetadata{})
	pe, ok := err.(*ProcessError)
	if !ok || pe.Category != ErrorCategoryDecode {
		t.Fatalf("Expected decode error, got %v", err)
	}
	if _, err := os.Stat(mainPath); err != nil {
		t.Error("main must not be renamed when preflight fails")
	}
	if _, err := os.Stat(overlayPath); err != nil {
		t.Error("overlay must be kept when preflight fails")
	}
}

// compositeImagePair lays out a fresh copy of the same pair and returns the
// composited bytes.
func compositeImagePair(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "2021-01-10_ABC-main.jpg")
	overlayPath := filepath.Join(dir, "2021-01-10_ABC-overlay.png")
	main := solidImage(8, 6, color.NRGBA{R: 200, G: 40, B: 10, A: 255})
	main.SetNRGBA(3, 2, color.NRGBA{G: 255, A: 255})
	writeJPEG(t, mainPath, main)
	writePNG(t, overlayPath, solidImage(4, 3, color.NRGBA{B: 255, A: 100}))

	c := newTestCompositor(newFakeTags(), nil, nil, t.TempDir())
	pairs, _, _ := Pair(classifyAll(t, mainPath, overlayPath))
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(pairs))
	}
	res, err := c.Composite(context.Background(), pairs[0], c.Metadata(context.Background(), pairs[0]))
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read composite: %v", err)
	}
	return data
}

func TestCompositor_ImageOutputIsReproducible(t *testing.T) {
	first := compositeImagePair(t)
	second := compositeImagePair(t)
	if len(first) == 0 || !bytes.Equal(first, second) {
		t.Errorf("composites differ: %d vs %d bytes", len(first), len(second))
	}
}

func compositeVideoPair(t *testing.T) videoCall {
	t.Helper()
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "2021-01-10_V-main.mp4")
	overlayPath := filepath.Join(dir, "2021-01-10_V-overlay.png")
	writeFile(t, mainPath, mp4Bytes("main"))
	writePNG(t, overlayPath, solidImage(4, 4, color.NRGBA{G: 255, A: 255}))

	prober := newFakeProber()
	prober.results["2021-01-10_V-main.mp4"] = ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video"}, {CodecType: "audio"}},
		Format: ffprobe.Format{Tags: map[string]string{
			"creation_time": "2021-01-08T12:00:00.000000Z",
			"title":         "clip",
		}},
	}
	video := &fakeVideo{}
	c := newTestCompositor(newFakeTags(), prober, video, t.TempDir())

	pairs, _, _ := Pair(classifyAll(t, mainPath, overlayPath))
	if _, err := c.Composite(context.Background(), pairs[0], c.Metadata(context.Background(), pairs[0])); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if len(video.calls) != 1 {
		t.Fatalf("calls = %v", video.calls)
	}

	// Paths differ per temp dir; compare by name.
	call := video.calls[0]
	for i, in := range call.inputs {
		call.inputs[i] = filepath.Base(in)
	}
	call.output = filepath.Base(call.output)
	return call
}

func TestCompositor_VideoArgsAreReproducible(t *testing.T) {
	first := compositeVideoPair(t)
	second := compositeVideoPair(t)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("transcoder calls differ:\n%+v\n%+v", first, second)
	}
}
