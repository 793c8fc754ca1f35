// Package lint runs informational style checks on an approved
// candidate. Findings are surfaced to the operator but never gate the
// retry decision.
package lint

import (
	"fmt"
	"go/format"
	"strings"

	"codeloop/internal/logging"
)

// Finding is one advisory observation about the candidate.
type Finding struct {
	Line    int
	Message string
}

const maxLineLength = 120

// Check reports style findings for the candidate. It never returns an
// error: a candidate that cannot be formatted simply yields a finding.
func Check(source string) []Finding {
	var findings []Finding

	formatted, err := format.Source([]byte(source))
	if err == nil {
		if string(formatted) != source {
			findings = append(findings, Finding{
				Message: "source is not gofmt-formatted",
			})
		}
	}

	for i, line := range strings.Split(source, "\n") {
		if len(line) > maxLineLength {
			findings = append(findings, Finding{
				Line:    i + 1,
				Message: fmt.Sprintf("line exceeds %d characters", maxLineLength),
			})
		}
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			findings = append(findings, Finding{
				Line:    i + 1,
				Message: "leftover TODO/FIXME marker",
			})
		}
	}

	for _, f := range findings {
		logging.Lint("line %d: %s", f.Line, f.Message)
	}
	return findings
}
