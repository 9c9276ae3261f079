package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// ReportOptions controls plan display.
type ReportOptions struct {
	Format string // table or json
}

// DuplicateSetReport is one group of identical files.
type DuplicateSetReport struct {
	Fingerprint      string   `json:"fingerprint"`
	Survivor         string   `json:"survivor"`
	Date             string   `json:"date"`
	DateSource       string   `json:"date_source"`
	Removed          []string `json:"removed"`
	ReclaimableBytes int64    `json:"reclaimable_bytes"`
}

// PairReport is one planned composite.
type PairReport struct {
	Identifier string `json:"identifier"`
	Main       string `json:"main"`
	Overlay    string `json:"overlay"`
	Output     string `json:"output"`
	Date       string `json:"date,omitempty"`
	DateSource string `json:"date_source,omitempty"`
}

// IssueReport is a file that needs attention.
type IssueReport struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// PlanReport is the serializable form of a Plan.
type PlanReport struct {
	InputDir         string               `json:"input_dir"`
	Scanned          int                  `json:"scanned"`
	ReclaimableBytes int64                `json:"reclaimable_bytes"`
	DuplicateSets    []DuplicateSetReport `json:"duplicate_sets"`
	Pairs            []PairReport         `json:"pairs"`
	LoneOverlays     []string             `json:"lone_overlays"`
	Unpaired         []IssueReport        `json:"unpaired"`
	VoiceMemos       []string             `json:"voice_memos"`
	Mismatches       []IssueReport        `json:"mismatches"`
	Skipped          []IssueReport        `json:"skipped"`
	Prunable         []string             `json:"prunable,omitempty"`
}

func formatDate(c CandidateDate) (string, string) {
	if c.IsZero() {
		return "", ""
	}
	return c.Time.Format(time.RFC3339), string(c.Source)
}

// BuildReport flattens a plan for display.
func BuildReport(plan *Plan) PlanReport {
	r := PlanReport{
		InputDir:         plan.InputDir,
		Scanned:          plan.Scanned,
		ReclaimableBytes: plan.ReclaimableBytes(),
		Prunable:         plan.Prunable,
	}

	res := plan.Resolution
	if res == nil {
		res = &Resolution{}
	}
	for _, g := range res.Groups {
		survivor := g.Survivor()
		set := DuplicateSetReport{
			Fingerprint:      g.Fingerprint,
			Survivor:         survivor.Path,
			ReclaimableBytes: g.ReclaimableBytes(),
		}
		set.Date, set.DateSource = formatDate(survivor.Date)
		for _, m := range g.Removed() {
			set.Removed = append(set.Removed, m.Path)
		}
		r.DuplicateSets = append(r.DuplicateSets, set)
	}

	for _, pp := range plan.Pairs {
		pr := PairReport{
			Identifier: pp.Pair.Identifier,
			Main:       pp.Pair.Main.Path,
			Overlay:    pp.Pair.Overlay.Path,
			Output:     pp.Composite,
		}
		pr.Date, pr.DateSource = formatDate(pp.Metadata.Date)
		r.Pairs = append(r.Pairs, pr)
	}

	for _, w := range plan.Warnings {
		if w.Asset.Role == RoleOverlay && w.Reason == "no main for overlay" {
			r.LoneOverlays = append(r.LoneOverlays, w.Asset.Path)
			continue
		}
		r.Unpaired = append(r.Unpaired, IssueReport{Path: w.Asset.Path, Reason: w.Reason})
	}

	for _, m := range plan.VoiceMemos {
		r.VoiceMemos = append(r.VoiceMemos, m.Asset.Path)
	}
	for _, m := range plan.Mismatches {
		r.Mismatches = append(r.Mismatches, IssueReport{
			Path:   m.Path,
			Reason: fmt.Sprintf("%s extension but content is %s", m.Kind, m.Detected),
		})
	}
	for _, s := range res.Skipped {
		r.Skipped = append(r.Skipped, IssueReport{Path: s.Path, Reason: s.Err.Error()})
	}
	for _, pe := range plan.Errors {
		r.Skipped = append(r.Skipped, IssueReport{Path: pe.FilePath, Reason: pe.Error()})
	}
	return r
}

// DisplayPlan writes the plan as a table or as JSON.
func DisplayPlan(w io.Writer, plan *Plan, options ReportOptions) error {
	report := BuildReport(plan)
	if options.Format == "json" {
		return displayJSON(w, report)
	}
	return displayTable(w, report)
}

// displayJSON outputs results in JSON format
func displayJSON(w io.Writer, report PlanReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// displayTable outputs results in human-readable table format
func displayTable(w io.Writer, r PlanReport) error {
	fmt.Fprintf(w, "=== snapsift plan: %s ===\n\n", r.InputDir)

	fmt.Fprintf(w, "📊 Overview:\n")
	fmt.Fprintf(w, "  - %d media files scanned\n", r.Scanned)
	fmt.Fprintf(w, "  - %d duplicate sets, %s reclaimable\n", len(r.DuplicateSets), humanize.IBytes(uint64(r.ReclaimableBytes)))
	fmt.Fprintf(w, "  - %d overlay pairs to composite\n", len(r.Pairs))
	fmt.Fprintf(w, "  - %d voice memos\n", len(r.VoiceMemos))
	if len(r.Prunable) > 0 {
		fmt.Fprintf(w, "  - %d files to prune\n", len(r.Prunable))
	}
	fmt.Fprintln(w)

	if len(r.DuplicateSets) > 0 {
		fmt.Fprintf(w, "🔁 Duplicates:\n")
		var rows [][]string
		for _, set := range r.DuplicateSets {
			rows = append(rows, []string{
				filepath.Base(set.Survivor),
				set.Date,
				set.DateSource,
				strconv.Itoa(len(set.Removed)),
				humanize.IBytes(uint64(set.ReclaimableBytes)),
			})
		}
		fmt.Fprintln(w, renderTable([]string{"Survivor", "Date", "Source", "Removed", "Reclaimable"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
		fmt.Fprintln(w)
	}

	if len(r.Pairs) > 0 {
		fmt.Fprintf(w, "🖼️  Overlay pairs:\n")
		var rows [][]string
		for _, p := range r.Pairs {
			date := p.Date
			if date == "" {
				date = "-"
			}
			rows = append(rows, []string{filepath.Base(p.Main), filepath.Base(p.Overlay), filepath.Base(p.Output), date})
		}
		fmt.Fprintln(w, renderTable([]string{"Main", "Overlay", "Output", "Date"}, rows, nil))
		fmt.Fprintln(w)
	}

	printList(w, "🎙️  Voice memos:", r.VoiceMemos)
	printList(w, "👻 Lone overlays:", r.LoneOverlays)
	printIssues(w, "⚠️  Not paired:", r.Unpaired)
	printIssues(w, "🧩 Extension mismatches:", r.Mismatches)
	printIssues(w, "⏭️  Skipped:", r.Skipped)
	printList(w, "🧹 Prunable:", r.Prunable)
	return nil
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, it := range items {
		fmt.Fprintf(w, "  • %s\n", it)
	}
	fmt.Fprintln(w)
}

func printIssues(w io.Writer, title string, issues []IssueReport) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, is := range issues {
		fmt.Fprintf(w, "  • %s: %s\n", is.Path, is.Reason)
	}
	fmt.Fprintln(w)
}
