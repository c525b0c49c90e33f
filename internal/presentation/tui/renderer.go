package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// Plain returns markdown unchanged.
func Plain(markdown string) (string, error) {
	return markdown, nil
}

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() Renderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return Plain
	}
	return r.Render
}

// ForWriter picks glamour when w is a terminal and Plain otherwise.
func ForWriter(w io.Writer) Renderer {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return NewRenderer()
	}
	return Plain
}

// EntityMarkdown describes one entity: its states per axis, then its history.
func EntityMarkdown(e domain.Entity, states domain.States, axes []domain.Axis, history []domain.HistoryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s `%s`\n\n", e.Type(), e.UID())
	if p := e.Parent(); p != nil {
		fmt.Fprintf(&sb, "Parent: %s `%s`\n\n", p.Type(), p.UID())
	}

	sb.WriteString("## States\n\n| Axis | State |\n|---|---|\n")
	for _, axis := range axes {
		fmt.Fprintf(&sb, "| %s | %s |\n", axis, states[axis])
	}

	sb.WriteString("\n## History\n\n")
	if len(history) == 0 {
		sb.WriteString("_No transitions yet._\n")
		return sb.String()
	}
	sb.WriteString("| When | Transition | Axis | From | To | Actor | Comment |\n|---|---|---|---|---|---|---|\n")
	for _, h := range history {
		transition := string(h.Transition)
		if transition == "" {
			transition = "_forced_"
		}
		when := ""
		if !h.Timestamp.IsZero() {
			when = h.Timestamp.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			when, transition, h.Axis, h.From, h.To, h.Actor, escapeCell(h.Comment))
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}
