// Package report renders the outcome of an observed run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/contendwatch/internal/agent"
	"github.com/Iron-Ham/contendwatch/internal/errors"
)

// Format selects how a Report is written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ValidFormats returns the supported output formats.
func ValidFormats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if !slices.Contains(ValidFormats(), f) {
		return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
	}
	return f, nil
}

// Report is the serializable summary of one run.
type Report struct {
	Passed       bool               `json:"passed" yaml:"passed"`
	EventCount   int64              `json:"event_count" yaml:"event_count"`
	Phase        agent.Phase        `json:"phase" yaml:"phase"`
	Error        string             `json:"error,omitempty" yaml:"error,omitempty"`
	Check        string             `json:"check,omitempty" yaml:"check,omitempty"`
	Observed     map[string]any     `json:"observed,omitempty" yaml:"observed,omitempty"`
	Duration     string             `json:"duration" yaml:"duration"`
	Capabilities agent.Negotiation  `json:"capabilities" yaml:"capabilities"`
	Transitions  []agent.Transition `json:"transitions" yaml:"transitions"`
}

// FromResult builds a Report from a runner result.
func FromResult(res agent.Result) Report {
	r := Report{
		Passed:       res.Passed(),
		EventCount:   res.EventCount,
		Phase:        res.Phase,
		Duration:     res.Duration.Round(time.Millisecond).String(),
		Capabilities: res.Negotiation,
		Transitions:  res.Transitions,
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
		var he *errors.HarnessError
		if errors.As(res.Err, &he) {
			r.Check = he.Message
			r.Observed = he.Observed
		}
	}
	return r
}

// Write renders r to w in the given format. styled enables lipgloss
// colors for the text format and is ignored otherwise.
func Write(w io.Writer, r Report, format Format, styled bool) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, newTheme(styled).render(r))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteCapabilities renders a capability negotiation as text.
func WriteCapabilities(w io.Writer, n agent.Negotiation, styled bool) error {
	t := newTheme(styled)
	var sb strings.Builder
	sb.WriteString(t.title.Render("CAPABILITIES") + "\n")
	sb.WriteString(strings.Repeat("─", 50) + "\n")
	t.capabilities(&sb, n)
	_, err := io.WriteString(w, sb.String())
	return err
}

type theme struct {
	title lipgloss.Style
	pass  lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
}

func newTheme(styled bool) theme {
	if !styled {
		plain := lipgloss.NewStyle()
		return theme{title: plain, pass: plain, fail: plain, muted: plain}
	}
	return theme{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")),
		pass:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		fail:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F87171")),
		muted: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	}
}

func (t theme) render(r Report) string {
	var sb strings.Builder

	sb.WriteString(t.title.Render("RUN SUMMARY") + "\n")
	sb.WriteString(strings.Repeat("─", 50) + "\n")
	if r.Passed {
		sb.WriteString("Result:      " + t.pass.Render("PASS") + "\n")
	} else {
		sb.WriteString("Result:      " + t.fail.Render("FAIL") + "\n")
	}
	fmt.Fprintf(&sb, "Event count: %d\n", r.EventCount)
	fmt.Fprintf(&sb, "Phase:       %s\n", r.Phase)
	fmt.Fprintf(&sb, "Duration:    %s\n", r.Duration)
	if r.Error != "" {
		sb.WriteString("Error:       " + t.fail.Render(r.Error) + "\n")
	}
	if r.Check != "" {
		fmt.Fprintf(&sb, "Check:       %s\n", r.Check)
	}
	if len(r.Observed) > 0 {
		keys := make([]string, 0, len(r.Observed))
		for k := range r.Observed {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s = %v\n", k, r.Observed[k])
		}
	}
	sb.WriteString("\n")

	sb.WriteString(t.title.Render("CAPABILITIES") + "\n")
	sb.WriteString(strings.Repeat("─", 50) + "\n")
	t.capabilities(&sb, r.Capabilities)
	sb.WriteString("\n")

	sb.WriteString(t.title.Render("PHASES") + "\n")
	sb.WriteString(strings.Repeat("─", 50) + "\n")
	for _, tr := range r.Transitions {
		from := string(tr.From)
		if from == "" {
			from = "-"
		}
		line := fmt.Sprintf("%s %-26s -> %s", tr.Timestamp.Format("15:04:05.000"), from, tr.To)
		if tr.Reason != "" {
			line += " " + t.muted.Render("("+tr.Reason+")")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (t theme) capabilities(sb *strings.Builder, n agent.Negotiation) {
	rows := []struct {
		name             string
		potential, grant bool
	}{
		{"can_generate_monitor_events", n.Potential.CanGenerateMonitorEvents, n.Granted.CanGenerateMonitorEvents},
		{"can_get_monitor_info", n.Potential.CanGetMonitorInfo, n.Granted.CanGetMonitorInfo},
		{"can_get_current_contended_monitor", n.Potential.CanGetCurrentContendedMonitor, n.Granted.CanGetCurrentContendedMonitor},
		{"can_get_owned_monitor_info", n.Potential.CanGetOwnedMonitorInfo, n.Granted.CanGetOwnedMonitorInfo},
	}
	fmt.Fprintf(sb, "%-34s %-9s %s\n", "", "potential", "granted")
	for _, row := range rows {
		fmt.Fprintf(sb, "%-34s %-9s %s\n", row.name, t.mark(row.potential), t.mark(row.grant))
	}
}

func (t theme) mark(ok bool) string {
	if ok {
		return t.pass.Render("yes")
	}
	return t.muted.Render("no")
}

// Summary is the single log line form of a report.
func Summary(r Report) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("%s: %d contention events observed on the target (phase %s)", status, r.EventCount, r.Phase)
}
