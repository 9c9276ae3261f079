package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// RunConfig is everything one run needs. It is built from Config plus CLI
// flags and passed explicitly to each entry point.
type RunConfig struct {
	InputDir          string
	ScratchDir        string
	StateDir          string
	ImageExt          []string
	VideoExt          []string
	FFmpegBinary      string
	FFprobeBinary     string
	ExiftoolBinary    string
	JPEGQuality       int
	DryRun            bool
	Prune             bool
	ConvertVoiceMemos bool
	BrowseLinks       bool
	Progress          bool
	ProgressOut       io.Writer
}

// NewRunConfig fills a RunConfig from loaded settings.
func NewRunConfig(cfg *Config, inputDir string) RunConfig {
	return RunConfig{
		InputDir:          inputDir,
		ScratchDir:        cfg.ScratchDir,
		StateDir:          cfg.StateDir,
		ImageExt:          cfg.ImageExt,
		VideoExt:          cfg.VideoExt,
		FFmpegBinary:      cfg.FFmpegBinary,
		FFprobeBinary:     cfg.FFprobeBinary,
		ExiftoolBinary:    cfg.ExiftoolBinary,
		JPEGQuality:       cfg.JPEGQuality,
		ConvertVoiceMemos: cfg.ConvertVoiceMemos,
		BrowseLinks:       cfg.BrowseLinks,
	}
}

func (rc RunConfig) media() *Config {
	return &Config{ImageExt: rc.ImageExt, VideoExt: rc.VideoExt}
}

// PipelineDeps overrides the external collaborators. Nil fields get the
// production implementations.
type PipelineDeps struct {
	Tags   TagStore
	Prober VideoProber
	Video  VideoTranscoder
}

// Pipeline runs the phases over one export folder.
type Pipeline struct {
	cfg        RunConfig
	logger     *zap.Logger
	tags       TagStore
	prober     VideoProber
	video      VideoTranscoder
	exiftool   *ExifTool
	dates      *DateExtractor
	resolver   *Resolver
	stamper    *Stamper
	compositor *Compositor
	memos      *VoiceMemos
}

func NewPipeline(cfg RunConfig, deps PipelineDeps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "snapsift")
	}
	if cfg.ProgressOut == nil {
		cfg.ProgressOut = os.Stderr
	}

	p := &Pipeline{cfg: cfg, logger: logger.With(zap.String("component", "pipeline"))}
	p.tags = deps.Tags
	if p.tags == nil {
		p.exiftool = NewExifTool(cfg.ExiftoolBinary)
		p.tags = p.exiftool
	}
	p.prober = deps.Prober
	if p.prober == nil {
		p.prober = NewFFprobe(cfg.FFprobeBinary)
	}
	p.video = deps.Video
	if p.video == nil {
		p.video = NewFFmpeg(cfg.FFmpegBinary)
	}

	p.dates = NewDateExtractor(p.tags, p.prober, logger)
	p.resolver = NewResolver(p.dates, logger)
	p.stamper = NewStamper(p.tags, p.video, cfg.ScratchDir, logger)
	p.compositor = NewCompositor(CompositorOptions{
		Dates:       p.dates,
		Tags:        p.tags,
		Prober:      p.prober,
		Video:       p.video,
		Stamper:     p.stamper,
		ScratchDir:  cfg.ScratchDir,
		JPEGQuality: cfg.JPEGQuality,
		Logger:      logger,
	})
	p.memos = NewVoiceMemos(p.prober, p.video, p.dates, cfg.ScratchDir, cfg.ConvertVoiceMemos, logger)
	return p
}

// Close stops the exiftool process if this pipeline started one.
func (p *Pipeline) Close() error {
	if p.exiftool != nil {
		return p.exiftool.Close()
	}
	return nil
}

// PlannedPair is a pair with the metadata it will be stamped with.
type PlannedPair struct {
	Pair      OverlayPair
	Metadata  ReconciledMetadata
	Original  string
	Composite string
}

// PlannedMemo is an audio-only recording found among the survivors.
type PlannedMemo struct {
	Asset Asset
	Date  CandidateDate
}

// Mismatch is a file whose content does not match its extension.
type Mismatch struct {
	Path     string
	Kind     MediaKind
	Detected string
}

// Plan is every decision of a run, computed from one snapshot before any
// file is touched.
type Plan struct {
	InputDir    string
	Scanned     int
	Prunable    []string
	Resolution  *Resolution
	Pairs       []PlannedPair
	Passthrough []Asset
	Warnings    []PairWarning
	VoiceMemos  []PlannedMemo
	Mismatches  []Mismatch
	Errors      []*ProcessError
}

// ReclaimableBytes is the total size of the scheduled deletions.
func (p *Plan) ReclaimableBytes() int64 {
	var n int64
	if p.Resolution == nil {
		return 0
	}
	for _, g := range p.Resolution.Groups {
		n += g.ReclaimableBytes()
	}
	return n
}

// Plan scans the folder and computes the full resolution and pairing
// without mutating anything.
func (p *Pipeline) Plan(ctx context.Context) (*Plan, error) {
	if err := checkDir(p.cfg.InputDir); err != nil {
		return nil, err
	}
	plan := &Plan{InputDir: p.cfg.InputDir}

	if p.cfg.Prune {
		prunable, err := PruneFiles(p.cfg.InputDir, p.cfg.media(), true)
		if err != nil {
			return nil, err
		}
		plan.Prunable = prunable
	}
	return p.plan(ctx, plan)
}

func (p *Pipeline) plan(ctx context.Context, plan *Plan) (*Plan, error) {
	assets, err := ScanMediaFiles(p.cfg.InputDir, p.cfg.media())
	if err != nil {
		return nil, err
	}
	plan.Scanned = len(assets)
	p.logger.Info("snapshot taken", zap.String("input", p.cfg.InputDir), zap.Int("files", len(assets)))

	bar := newProgress(p.cfg.Progress, p.cfg.ProgressOut, len(assets), "hashing")
	p.resolver.WithProgress(func(done, _ int) { bar.Set(done) })
	res, err := p.resolver.Resolve(ctx, assets)
	bar.Finish()
	p.resolver.WithProgress(nil)
	if err != nil {
		return nil, err
	}
	plan.Resolution = res

	pairs, passthrough, warnings := Pair(res.Survivors)
	plan.Passthrough = passthrough
	plan.Warnings = warnings
	for _, w := range warnings {
		p.logger.Warn("not paired", zap.String("path", w.Asset.Path), zap.String("reason", w.Reason))
	}
	for _, pair := range pairs {
		original, composite := OutputPaths(pair.Main)
		plan.Pairs = append(plan.Pairs, PlannedPair{
			Pair:      pair,
			Metadata:  p.compositor.Metadata(ctx, pair),
			Original:  original,
			Composite: composite,
		})
	}

	for _, a := range passthrough {
		if a.Kind != KindVideo {
			continue
		}
		memo, err := p.memos.IsVoiceMemo(ctx, a)
		if err != nil {
			pe := CategorizeError(a.Path, err)
			plan.Errors = append(plan.Errors, pe)
			p.logger.Warn("probe failed",
				zap.String("path", a.Path),
				zap.String("op", "probe"),
				zap.String("category", string(pe.Category)),
				zap.Error(err))
			continue
		}
		if memo {
			plan.VoiceMemos = append(plan.VoiceMemos, PlannedMemo{Asset: a, Date: p.memos.Date(ctx, a)})
		}
	}

	plan.Mismatches = detectMismatches(assets)
	return plan, nil
}

func detectMismatches(assets []Asset) []Mismatch {
	var out []Mismatch
	for _, a := range assets {
		mt, err := mimetype.DetectFile(a.Path)
		if err != nil {
			continue
		}
		detected := mt.String()
		ok := strings.HasPrefix(detected, string(a.Kind)+"/")
		if a.Kind == KindVideo && strings.HasPrefix(detected, "audio/") {
			ok = true
		}
		if !ok {
			out = append(out, Mismatch{Path: a.Path, Kind: a.Kind, Detected: detected})
		}
	}
	return out
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("folder does not exist or is not a directory: %s", dir)
	}
	return nil
}

// ErrLocked is returned when another run holds the folder lock.
var ErrLocked = errors.New("another snapsift run is already processing this folder")

// Run executes every phase against the folder. Per-file failures are
// recorded in the summary and never stop the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := checkDir(p.cfg.InputDir); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(p.cfg.InputDir, LockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
	}()

	session, err := NewRunSession(p.cfg.StateDir, p.cfg.InputDir)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	sum := newSummary(session)
	p.logger.Info("run started", zap.String("run_id", session.ID), zap.String("input", p.cfg.InputDir))

	plan := &Plan{InputDir: p.cfg.InputDir}
	if p.cfg.Prune {
		removed, err := PruneFiles(p.cfg.InputDir, p.cfg.media(), false)
		sum.phase(PhasePrune).Succeeded += len(removed)
		for _, e := range SplitErrors(err) {
			sum.fail(PhasePrune, p.cfg.InputDir, e, session)
		}
		plan.Prunable = removed
	}

	plan, err = p.plan(ctx, plan)
	if err != nil {
		return nil, err
	}
	sum.Scanned = plan.Scanned
	if err := session.LogSessionStart(plan.Scanned); err != nil {
		p.logger.Warn("manifest write failed", zap.Error(err))
	}

	res := plan.Resolution
	resolvePhase := sum.phase(PhaseResolve)
	resolvePhase.Succeeded = plan.Scanned - len(res.Skipped)
	for _, s := range res.Skipped {
		sum.record(PhaseResolve, s.Err, session)
	}
	for _, pe := range plan.Errors {
		sum.record(PhaseVoiceMemo, pe, session)
	}

	p.deleteDuplicates(ctx, res, sum, session)
	p.stampSurvivors(ctx, res, sum, session)
	p.convertVoiceMemos(ctx, plan.VoiceMemos, sum, session)
	p.compositePairs(ctx, plan.Pairs, sum, session)

	if p.cfg.Prune {
		removed, err := RemoveEmptyDirs(p.cfg.InputDir, false)
		sum.phase(PhasePrune).Succeeded += len(removed)
		for _, e := range SplitErrors(err) {
			sum.fail(PhasePrune, p.cfg.InputDir, e, session)
		}
	}

	if err := session.LogSessionEnd(); err != nil {
		p.logger.Warn("manifest write failed", zap.Error(err))
	}
	stats := session.GetStats()
	p.logger.Info("run finished",
		zap.String("run_id", session.ID),
		zap.Int("duplicates_removed", stats.DuplicatesRemoved),
		zap.Int("stamped", stats.Stamped),
		zap.Int("composited", stats.Composited),
		zap.Int("errors", sum.Errors.Total))
	return sum, ctx.Err()
}

func (p *Pipeline) deleteDuplicates(ctx context.Context, res *Resolution, sum *Summary, session *RunSession) {
	for _, g := range res.Groups {
		survivor := g.Survivor()
		for _, m := range g.Removed() {
			if ctx.Err() != nil {
				return
			}
			if err := os.Remove(m.Path); err != nil {
				sum.record(PhaseDelete, IOError(m.Path, "delete", err), session)
				continue
			}
			sum.phase(PhaseDelete).Succeeded++
			sum.BytesReclaimed += m.Size
			_ = session.LogDuplicateRemoved(m, survivor.Path, g.Fingerprint)
			p.logger.Debug("duplicate removed", zap.String("path", m.Path), zap.String("survivor", survivor.Path))
		}
	}
}

func (p *Pipeline) stampSurvivors(ctx context.Context, res *Resolution, sum *Summary, session *RunSession) {
	for _, a := range res.Survivors {
		date, ok := res.Dates[a.Path]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := p.stamper.Stamp(ctx, a, ReconciledMetadata{Date: date}); err != nil {
			sum.record(PhaseStamp, CategorizeError(a.Path, err), session)
			continue
		}
		sum.phase(PhaseStamp).Succeeded++
		_ = session.LogStamped(a.Path, date)
	}
}

func (p *Pipeline) convertVoiceMemos(ctx context.Context, memos []PlannedMemo, sum *Summary, session *RunSession) {
	for _, m := range memos {
		if ctx.Err() != nil {
			return
		}
		out, err := p.memos.Process(ctx, m.Asset, m.Date)
		if err != nil {
			sum.record(PhaseVoiceMemo, CategorizeError(m.Asset.Path, err), session)
			continue
		}
		sum.phase(PhaseVoiceMemo).Succeeded++
		_ = session.LogVoiceMemo(out)
	}
}

func (p *Pipeline) compositePairs(ctx context.Context, pairs []PlannedPair, sum *Summary, session *RunSession) {
	bar := newProgress(p.cfg.Progress, p.cfg.ProgressOut, len(pairs), "compositing")
	defer bar.Finish()

	for _, pp := range pairs {
		if ctx.Err() != nil {
			return
		}
		out, err := p.compositor.Composite(ctx, pp.Pair, pp.Metadata)
		bar.Add()
		if err != nil {
			sum.record(PhaseComposite, CategorizeError(pp.Pair.Main.Path, err), session)
			continue
		}
		sum.phase(PhaseComposite).Succeeded++
		if out.StampErr != nil {
			sum.record(PhaseStamp, CategorizeError(out.OutputPath, out.StampErr), session)
		} else if out.Metadata.HasDate() {
			sum.phase(PhaseStamp).Succeeded++
			_ = session.LogStamped(out.OutputPath, out.Metadata.Date)
		}

		browse := ""
		if p.cfg.BrowseLinks {
			name, err := session.CreateHardlink(out.OutputPath)
			if err != nil {
				p.logger.Warn("browse link failed", zap.String("path", out.OutputPath), zap.Error(err))
			} else {
				browse = name
			}
		}
		_ = session.LogComposited(out, browse)
	}
}
