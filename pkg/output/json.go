package output

import (
	"context"
	"encoding/json"
	"io"
)

// JSONFormatter writes one JSON document per report. Full reports are
// indented; quiet reports are a single line so several files analyzed in
// one run produce JSON lines.
type JSONFormatter struct {
	opts FormatOptions
}

// quietLine is the per-file record written in quiet mode.
type quietLine struct {
	Source string `json:"source"`
	Summary
	EventCounts map[string]int `json:"eventCounts"`
}

func NewJSONFormatter(opts FormatOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

func (f *JSONFormatter) Name() string {
	return "json"
}

func (f *JSONFormatter) Format(_ context.Context, report *Report, w io.Writer) error {
	enc := json.NewEncoder(w)

	if f.opts.Quiet {
		events := report.Results.EventCounts
		if events == nil {
			events = map[string]int{}
		}
		return enc.Encode(quietLine{
			Source:      report.Metadata.Source,
			Summary:     report.Summary,
			EventCounts: events,
		})
	}

	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
