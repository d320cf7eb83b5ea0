package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type printer struct {
	w      io.Writer
	header lipgloss.Style
	muted  lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:      w,
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7")),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		fail:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f7768e")),
	}
}

func (p *printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.ok.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) Note(format string, args ...any) {
	fmt.Fprintln(p.w, p.muted.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) Error(w io.Writer, msg string) {
	fmt.Fprintln(w, p.fail.Render("error: ")+msg)
}

// Fields prints label/value pairs with the labels aligned.
func (p *printer) Fields(pairs ...string) {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		width = max(width, lipgloss.Width(pairs[i]))
	}
	label := p.header.Width(width + 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintln(p.w, lipgloss.JoinHorizontal(lipgloss.Top, label.Render(pairs[i]), pairs[i+1]))
	}
}

// Table prints rows under headers, each column padded to its widest cell.
func (p *printer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		p.Note("(none)")
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	render := func(style lipgloss.Style, cells []string) string {
		out := make([]string, len(cells))
		for i, cell := range cells {
			out[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, out...), " ")
	}
	fmt.Fprintln(p.w, render(p.header, headers))
	plain := lipgloss.NewStyle()
	for _, row := range rows {
		fmt.Fprintln(p.w, render(plain, row))
	}
}
