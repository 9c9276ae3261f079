package internal

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"
)

// ScoredAsset is a duplicate-group member with its ordering date.
type ScoredAsset struct {
	Asset
	Size int64
	Date CandidateDate
}

// DuplicateGroup is a set of byte-identical files. Members are sorted oldest
// first; the first one survives.
type DuplicateGroup struct {
	Fingerprint string
	Members     []ScoredAsset
}

// Survivor is the member that is kept.
func (g DuplicateGroup) Survivor() ScoredAsset {
	return g.Members[0]
}

// Removed are the members scheduled for deletion.
func (g DuplicateGroup) Removed() []ScoredAsset {
	return g.Members[1:]
}

// ReclaimableBytes is the size freed by deleting the removed members.
func (g DuplicateGroup) ReclaimableBytes() int64 {
	var n int64
	for _, m := range g.Removed() {
		n += m.Size
	}
	return n
}

// SkippedAsset is a file left untouched because it could not be hashed or
// scored.
type SkippedAsset struct {
	Asset
	Err *ProcessError
}

// Resolution is the outcome of duplicate resolution over one snapshot.
type Resolution struct {
	Survivors []Asset                  // scan order
	Deletions []Asset                  // group order, then age
	Dates     map[string]CandidateDate // survivor path -> date to stamp
	Groups    []DuplicateGroup         // only groups with two or more scored members
	Skipped   []SkippedAsset
}

// Resolver groups files by content and picks the oldest copy of each group.
type Resolver struct {
	dates    *DateExtractor
	logger   *zap.Logger
	progress func(done, total int)
}

func NewResolver(dates *DateExtractor, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		dates:  dates,
		logger: logger.With(zap.String("component", "resolver")),
	}
}

// WithProgress registers a callback invoked after each file is hashed.
func (r *Resolver) WithProgress(fn func(done, total int)) {
	r.progress = fn
}

// Resolve fingerprints every asset, groups identical content and chooses one
// survivor per group. It reads only; callers apply the deletions.
func (r *Resolver) Resolve(ctx context.Context, assets []Asset) (*Resolution, error) {
	res := &Resolution{Dates: make(map[string]CandidateDate)}

	type bucket struct {
		fingerprint string
		members     []ScoredAsset
	}
	var order []*bucket
	byHash := make(map[string]*bucket)

	for i, a := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fp, size, err := r.fingerprint(a)
		if r.progress != nil {
			r.progress(i+1, len(assets))
		}
		if err != nil {
			res.Skipped = append(res.Skipped, r.skip(a, "hash", err))
			continue
		}
		b, ok := byHash[fp]
		if !ok {
			b = &bucket{fingerprint: fp}
			byHash[fp] = b
			order = append(order, b)
		}
		b.members = append(b.members, ScoredAsset{Asset: a, Size: size})
	}

	keep := make(map[string]bool)
	for _, b := range order {
		if len(b.members) == 1 {
			keep[b.members[0].Path] = true
			continue
		}

		scored := make([]ScoredAsset, 0, len(b.members))
		for _, m := range b.members {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			date, err := r.dates.Score(ctx, m.Asset)
			if err != nil {
				res.Skipped = append(res.Skipped, r.skip(m.Asset, "score", err))
				continue
			}
			m.Date = date
			scored = append(scored, m)
		}
		if len(scored) == 0 {
			continue
		}

		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Date.Time.Before(scored[j].Date.Time)
		})
		group := DuplicateGroup{Fingerprint: b.fingerprint, Members: scored}
		survivor := group.Survivor()
		keep[survivor.Path] = true
		if survivor.Date.Source != FromFilesystem {
			res.Dates[survivor.Path] = survivor.Date
		}
		for _, m := range group.Removed() {
			res.Deletions = append(res.Deletions, m.Asset)
		}
		if len(scored) > 1 {
			res.Groups = append(res.Groups, group)
		}

		r.logger.Debug("duplicate group resolved",
			zap.String("fingerprint", b.fingerprint),
			zap.String("survivor", survivor.Path),
			zap.Stringer("date", survivor.Date),
			zap.Int("removed", len(scored)-1))
	}

	for _, a := range assets {
		if keep[a.Path] {
			res.Survivors = append(res.Survivors, a)
		}
	}
	return res, nil
}

func (r *Resolver) fingerprint(a Asset) (string, int64, error) {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return "", 0, IOError(a.Path, "stat", err)
	}
	fp, err := Fingerprint(a.Path)
	if err != nil {
		return "", 0, err
	}
	return fp, fi.Size(), nil
}

func (r *Resolver) skip(a Asset, op string, err error) SkippedAsset {
	pe := CategorizeError(a.Path, err)
	if pe.Op == "" {
		pe.Op = op
	}
	r.logger.Warn("asset skipped",
		zap.String("path", a.Path),
		zap.String("op", pe.Op),
		zap.String("category", string(pe.Category)),
		zap.Error(err))
	return SkippedAsset{Asset: a, Err: pe}
}
