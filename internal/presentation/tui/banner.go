package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the callflow banner followed by the version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Teal to green, one step per line.
	lines := []struct {
		text  string
		color string
	}{
		{`            _ _  __ _`, "#22d3ee"},
		{`   ___ __ _| | |/ _| | _____      __`, "#2dd4bf"},
		{`  / __/ _' | | | |_| |/ _ \ \ /\ / /`, "#34d399"},
		{` | (_| (_| | | |  _| | (_) \ V  V /`, "#4ade80"},
		{`  \___\__,_|_|_|_| |_|\___/ \_/\_/`, "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, out.String("  "+version).Faint())
	}
	fmt.Fprintln(w)
}
