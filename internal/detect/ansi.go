package detect

import (
	"regexp"
	"strings"
)

// Interactive CLIs redraw lines with escape sequences and carriage returns;
// both must be normalized away before heuristics run or matching is noise.
var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	crPattern  = regexp.MustCompile(`^.*\r`)
)

// Clean strips ANSI escape sequences from a line and resolves
// carriage-return redraws by keeping only the text after the final \r.
// A trailing \r is a CRLF line ending (PTYs in ONLCR mode emit \r\n),
// not a redraw, and is dropped before the redraw rule runs.
func Clean(line string) string {
	line = strings.TrimSuffix(line, "\r")
	line = csiPattern.ReplaceAllString(line, "")
	line = oscPattern.ReplaceAllString(line, "")
	line = crPattern.ReplaceAllString(line, "")
	return line
}
