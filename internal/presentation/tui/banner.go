package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the labflow ASCII banner to w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text, color string
	}{
		{" _       _       __ _               ", "#34d399"},
		{"| | __ _| |__   / _| | _____      __", "#2dd4bf"},
		{"| |/ _` | '_ \\ | |_| |/ _ \\ \\ /\\ / /", "#22d3ee"},
		{"| | (_| | |_) ||  _| | (_) \\ V  V / ", "#38bdf8"},
		{"|_|\\__,_|_.__/ |_| |_|\\___/ \\_/\\_/  ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// FormatOutcome renders o as a short coloured status for the terminal behind w.
func FormatOutcome(w io.Writer, o domain.Outcome) string {
	out := termenv.NewOutput(w)
	switch {
	case o.Performed && o.Message != "":
		return out.String("performed").Foreground(out.Color("3")).String() + " (" + o.Message + ")"
	case o.Performed:
		return out.String("performed").Foreground(out.Color("2")).Bold().String()
	case o.Failed():
		return out.String("failed").Foreground(out.Color("1")).Bold().String() + ": " + o.Message
	default:
		msg := string(o.Reason)
		if o.Message != "" {
			msg += ": " + o.Message
		}
		return out.String("rejected").Foreground(out.Color("3")).String() + " (" + msg + ")"
	}
}
