package internal

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Phase names, in execution order.
const (
	PhasePrune     = "prune"
	PhaseResolve   = "resolve"
	PhaseDelete    = "delete"
	PhaseStamp     = "stamp"
	PhaseVoiceMemo = "voice memo"
	PhaseComposite = "composite"
)

var phaseOrder = []string{PhasePrune, PhaseResolve, PhaseDelete, PhaseStamp, PhaseVoiceMemo, PhaseComposite}

// PhaseStats counts outcomes of one phase.
type PhaseStats struct {
	Name      string
	Succeeded int
	Failed    int
}

// Summary is the outcome of a mutating run.
type Summary struct {
	RunID          string
	ManifestPath   string
	Scanned        int
	BytesReclaimed int64
	Phases         map[string]*PhaseStats
	Errors         *ErrorStats
}

func newSummary(session *RunSession) *Summary {
	s := &Summary{
		Phases: make(map[string]*PhaseStats),
		Errors: NewErrorStats(),
	}
	if session != nil {
		s.RunID = session.ID
		s.ManifestPath = session.ManifestFile.Name()
	}
	return s
}

func (s *Summary) phase(name string) *PhaseStats {
	ps, ok := s.Phases[name]
	if !ok {
		ps = &PhaseStats{Name: name}
		s.Phases[name] = ps
	}
	return ps
}

// record counts a failure in phase and writes it to the manifest.
func (s *Summary) record(phase string, pe *ProcessError, session *RunSession) {
	if pe == nil {
		return
	}
	s.phase(phase).Failed++
	s.Errors.Add(pe)
	if session != nil {
		_ = session.LogDetailedError(pe.FilePath, pe)
	}
}

func (s *Summary) fail(phase, path string, err error, session *RunSession) {
	s.record(phase, CategorizeError(path, err), session)
}

// Failed reports whether any phase had failures.
func (s *Summary) Failed() bool {
	return s.Errors.Total > 0
}

// RenderSummary writes the per-phase table.
func RenderSummary(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "\n✨ Run %s finished: %d files scanned, %s reclaimed\n\n",
		s.RunID, s.Scanned, humanize.IBytes(uint64(s.BytesReclaimed)))

	var rows [][]string
	for _, name := range phaseOrder {
		ps, ok := s.Phases[name]
		if !ok {
			continue
		}
		rows = append(rows, []string{ps.Name, strconv.Itoa(ps.Succeeded), strconv.Itoa(ps.Failed)})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Phase", "OK", "Failed"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	}
	if s.ManifestPath != "" {
		fmt.Fprintf(w, "\n📒 Manifest: %s\n", s.ManifestPath)
	}
	if s.Failed() {
		fmt.Fprint(w, s.Errors.GenerateReport())
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	// Headers print as written.
	tw.Style().Format.Header = text.FormatDefault

	tw.AppendHeader(toRow(headers))
	for _, row := range rows {
		tw.AppendRow(toRow(row))
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func toRow(cells []string) table.Row {
	r := make(table.Row, len(cells))
	for i, c := range cells {
		r[i] = c
	}
	return r
}
