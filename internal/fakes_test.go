package internal

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"snapsift/internal/ffprobe"
)

func testConfig() *Config {
	return &Config{
		ImageExt: []string{".webp", ".png", ".jpeg", ".jpg"},
		VideoExt: []string{".mp4"},
	}
}

// fakeTags is an in-memory TagStore keyed by file base name.
type fakeTags struct {
	mu      sync.Mutex
	read    map[string]Tags
	writes  map[string][]Tags
	readErr error
}

func newFakeTags() *fakeTags {
	return &fakeTags{read: make(map[string]Tags), writes: make(map[string][]Tags)}
}

func (f *fakeTags) ReadTags(path string) (Tags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.read[filepath.Base(path)].Clone(), nil
}

func (f *fakeTags) WriteTags(path string, tags Tags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[path] = append(f.writes[path], tags.Clone())
	return nil
}

func (f *fakeTags) lastWrite(path string) Tags {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.writes[path]
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

// fakeProber answers from canned results keyed by base name. Unknown files
// look like a plain video with one video and one audio stream.
type fakeProber struct {
	results map[string]ffprobe.Result
	errs    map[string]error
	calls   int
}

func newFakeProber() *fakeProber {
	return &fakeProber{results: make(map[string]ffprobe.Result), errs: make(map[string]error)}
}

func (p *fakeProber) Probe(_ context.Context, path string) (ffprobe.Result, error) {
	p.calls++
	name := filepath.Base(path)
	if err, ok := p.errs[name]; ok {
		return ffprobe.Result{}, err
	}
	if res, ok := p.results[name]; ok {
		return res, nil
	}
	return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video"}, {CodecType: "audio"}}}, nil
}

func audioOnly(tags map[string]string) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "aac"}},
		Format:  ffprobe.Format{Tags: tags},
	}
}

// videoCall records one VideoTranscoder invocation.
type videoCall struct {
	op       string
	inputs   []string
	output   string
	metadata Tags
}

// fakeVideo writes placeholder outputs instead of running ffmpeg.
type fakeVideo struct {
	calls []videoCall
	err   error
}

func (v *fakeVideo) Overlay(_ context.Context, main, overlay, output string, metadata Tags) error {
	v.calls = append(v.calls, videoCall{op: "overlay", inputs: []string{main, overlay}, output: output, metadata: metadata.Clone()})
	if v.err != nil {
		return v.err
	}
	return os.WriteFile(output, []byte("composited video"), 0644)
}

func (v *fakeVideo) RewriteMetadata(_ context.Context, input, output string, metadata Tags) error {
	v.calls = append(v.calls, videoCall{op: "rewrite", inputs: []string{input}, output: output, metadata: metadata.Clone()})
	if v.err != nil {
		return v.err
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

func (v *fakeVideo) ExtractAudio(_ context.Context, input, output string) error {
	v.calls = append(v.calls, videoCall{op: "audio", inputs: []string{input}, output: output})
	if v.err != nil {
		return v.err
	}
	return os.WriteFile(output, []byte("ID3 mp3 audio"), 0644)
}

// mp4Bytes is a minimal ISO BMFF header that content sniffing reports as
// video/mp4. salt makes otherwise identical fixtures differ.
func mp4Bytes(salt string) []byte {
	b := []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")
	return append(b, []byte("\x00\x00\x00\x08free"+salt)...)
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func modTime(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return fi.ModTime().Unix()
}
