// Package ui renders command tables and results for the terminal and hosts
// the interactive screens: a huh form for picking a command and a bubbletea
// view that polls a report command.
package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/dispatch"
	"github.com/tturner/labctl/internal/frame"
)

// RenderTable renders a command table as a bordered grid.
func RenderTable(tbl *command.Table) string {
	rows := make([][]string, 0, tbl.Len())
	for _, s := range tbl.Specs() {
		code := s.Code
		if s.Dialect.Binary() {
			code = fmt.Sprintf("0x%02X", s.Function)
		}
		offset := ""
		if off, ok := s.ResponseOffset(); ok {
			offset = strconv.Itoa(off)
		}
		register := ""
		if s.Dialect == command.DialectCRC16 {
			register = fmt.Sprintf("0x%04X", s.Register)
		}
		rows = append(rows, []string{s.Name, string(s.Dialect), string(s.Kind), code, register, offset})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers("COMMAND", "DIALECT", "TYPE", "CODE", "REGISTER", "OFFSET")...).
		Rows(rows...).
		StyleFunc(func(_, _ int) lipgloss.Style {
			return cellStyle
		})

	var sb strings.Builder
	name := tbl.Name()
	if name == "" {
		name = "command table"
	}
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d commands)", name, tbl.Len())))
	sb.WriteString("\n")
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	return sb.String()
}

// FormatValue renders a result value for display.
func FormatValue(res frame.Result) string {
	switch res.Type {
	case frame.ValueBoolean:
		if res.Bool {
			return "ok"
		}
		return "false"
	case frame.ValueInteger:
		return strconv.FormatInt(res.Int, 10)
	case frame.ValueBits:
		return res.BitString()
	default:
		return frame.FormatHex(res.Raw)
	}
}

// RenderResult renders one decoded result.
func RenderResult(res frame.Result) string {
	label := headerStyle.Render(res.Command)
	kind := dimStyle.Render(fmt.Sprintf("[%s %s]", res.Kind, res.Type))
	return fmt.Sprintf("%s %s %s", label, kind, successStyle.Render(FormatValue(res)))
}

// RenderFrame renders a labelled frame as hex and, for printable frames,
// as quoted text.
func RenderFrame(label string, f frame.Frame) string {
	line := fmt.Sprintf("%s %s", dimStyle.Render(label), f.Hex())
	if isPrintable(f.Bytes()) {
		line += dimStyle.Render(fmt.Sprintf("  %q", f.Text()))
	}
	return line
}

// RenderOutcomes renders a batch of per-target outcomes, one per line.
func RenderOutcomes(outcomes []dispatch.Outcome) string {
	var sb strings.Builder
	failed := 0
	for _, o := range outcomes {
		target := dimStyle.Render(fmt.Sprintf("#%d", o.Target))
		if o.Err != nil {
			failed++
			fmt.Fprintf(&sb, "%s %s\n", target, errorStyle.Render(o.Err.Error()))
			continue
		}
		fmt.Fprintf(&sb, "%s %s\n", target, RenderResult(o.Result))
	}
	summary := fmt.Sprintf("%d ok, %d failed", len(outcomes)-failed, failed)
	if failed > 0 {
		sb.WriteString(warningStyle.Render(summary))
	} else {
		sb.WriteString(successStyle.Render(summary))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderError renders an error in the error style.
func RenderError(err error) string {
	return errorStyle.Render(err.Error())
}

// CopyToClipboard copies text to the system clipboard.
func CopyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func headers(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = headerStyle.Render(n)
	}
	return out
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
