package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/ui"
)

// colorizedHelpFunc renders cobra's usage text through styleHelp when the
// output is a color terminal.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		if !ui.ColorEnabled(w) {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(w)
		fmt.Fprint(w, styleHelp(buf.String()))
	}
}

// styleHelp colors usage text line by line. Headings are accented. Under
// a command group the command name is highlighted; under a flags heading
// the value type and default are muted.
func styleHelp(s string) string {
	var b strings.Builder
	var section string
	for line := range strings.Lines(s) {
		body, nl := strings.CutSuffix(line, "\n")
		switch {
		case body == "":
		case body[0] != ' ' && strings.HasSuffix(body, ":"):
			section = body
			if section != "Usage:" {
				body = ui.RenderAccent(body)
			}
		case strings.HasSuffix(section, "Flags:"):
			body = styleFlagLine(body)
		case section == "Usage:" || section == "Examples:" || section == "Aliases:":
		case strings.HasPrefix(body, "  ") && len(body) > 2 && body[2] != ' ':
			name, rest, _ := strings.Cut(body[2:], " ")
			body = "  " + ui.RenderCommand(name) + " " + rest
		}
		b.WriteString(body)
		if nl {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// styleFlagLine mutes the type of a flag such as "--price uint64" and a
// trailing (default ...) note.
func styleFlagLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "-") {
		return line
	}
	indent := line[:len(line)-len(trimmed)]
	spec, desc, ok := strings.Cut(trimmed, "  ")
	if !ok {
		return line
	}
	if i := strings.LastIndexByte(spec, ' '); i >= 0 && !strings.HasPrefix(spec[i+1:], "-") {
		spec = spec[:i+1] + ui.RenderMuted(spec[i+1:])
	}
	if i := strings.LastIndex(desc, "(default "); i >= 0 && strings.HasSuffix(desc, ")") {
		desc = desc[:i] + ui.RenderMuted(desc[i:])
	}
	return indent + spec + "  " + desc
}
