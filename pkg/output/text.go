package output

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ccollicutt/logsift/pkg/extract"
	"github.com/ccollicutt/logsift/pkg/rules"
)

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// styles are bound to the output writer so color is only emitted on a
// terminal that supports it.
type styles struct {
	title   lipgloss.Style
	heading lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	ok      lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		heading: r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	_, err := fmt.Fprintf(w, "logsift: %s: %s matches in %s lines, %s errors\n",
		report.Metadata.Source,
		humanize.Comma(int64(report.Summary.Matches)),
		humanize.Comma(int64(report.Summary.LinesRead)),
		humanize.Comma(int64(report.Summary.Errors)))
	return err
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	st := newStyles(w)
	res := report.Results

	fmt.Fprintln(w, st.title.Render("=== logsift analysis: "+report.Metadata.Source+" ==="))
	fmt.Fprintln(w)

	if res.TimeRange.Start != nil {
		fmt.Fprintf(w, "Time range: %s -> %s\n", *res.TimeRange.Start, *res.TimeRange.End)
	} else {
		fmt.Fprintln(w, "Time range: "+st.muted.Render("n/a"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("Levels"))
	writeCounts(w, st, res.LevelCounts)
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("Events"))
	writeCounts(w, st, res.EventCounts)
	fmt.Fprintln(w)

	if len(report.Metadata.ExcludedRules) > 0 {
		fmt.Fprintln(w, st.warn.Render("Excluded rules"))
		for _, ex := range report.Metadata.ExcludedRules {
			fmt.Fprintf(w, "  - %s (%s): %s\n", ex.Name, ex.Pattern, ex.Error)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "---")
	summary := fmt.Sprintf("Summary: %s matches in %s lines, %s errors",
		humanize.Comma(int64(report.Summary.Matches)),
		humanize.Comma(int64(report.Summary.LinesRead)),
		humanize.Comma(int64(report.Summary.Errors)))
	if report.HasEvents() {
		fmt.Fprintln(w, st.ok.Render(summary))
	} else {
		fmt.Fprintln(w, st.err.Render(summary))
	}

	if f.opts.Verbose {
		fmt.Fprintf(w, "State: %s\n", report.Summary.State)
		if report.Metadata.RulesFile != "" {
			fmt.Fprintf(w, "Rules file: %s\n", report.Metadata.RulesFile)
		}
		fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(1e6))
	}

	return nil
}

// writeCounts prints a histogram sorted by count, then name.
func writeCounts(w io.Writer, st styles, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "  "+st.muted.Render("none"))
		return
	}

	keys := make([]string, 0, len(counts))
	width := 0
	for k := range counts {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		fmt.Fprintf(w, "  %-*s  %s\n", width, k, humanize.Comma(int64(counts[k])))
	}
}

// WriteMatch prints one matched entry on a single line. It is used as the
// verbose match handler of the analyze command.
func WriteMatch(w io.Writer, entry extract.LogEntry, matched []rules.Rule) error {
	names := make([]string, len(matched))
	for i, r := range matched {
		names[i] = r.Name
	}

	_, err := fmt.Fprintf(w, "%s [%s] %s (%s)\n",
		entry.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		entry.Level,
		entry.Message,
		strings.Join(names, ", "))
	return err
}
