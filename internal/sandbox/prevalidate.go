package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"codeloop/internal/logging"
	"codeloop/internal/signature"
)

// PrevalKind classifies a direct invocation of the candidate with the
// inferred test values, ahead of the full suite.
type PrevalKind int

const (
	CallReturns PrevalKind = iota
	CallPanics
	CallTimeout
	CallNoOutput
)

func (k PrevalKind) String() string {
	switch k {
	case CallReturns:
		return "callable-and-returns"
	case CallPanics:
		return "panics"
	case CallTimeout:
		return "times-out"
	case CallNoOutput:
		return "no-output"
	default:
		return "unknown"
	}
}

// Prevalidation is the result of the cheap direct-call check.
type Prevalidation struct {
	Kind    PrevalKind
	Detail  string
	Output  string
	Elapsed time.Duration
}

// Prevalidate invokes the subject directly with the inferred argument
// values. It is skipped by callers for modification tasks, whose
// correctness is structural rather than value-based.
func (r *Runner) Prevalidate(ctx context.Context, candidate string, sig signature.Signature, args []string) Prevalidation {
	start := time.Now()

	call := fmt.Sprintf("main.%s(%s)", sig.Name, strings.Join(args, ", "))

	program, err := buildProgram(candidate, "")
	if err != nil {
		return Prevalidation{
			Kind:    CallPanics,
			Detail:  err.Error(),
			Elapsed: time.Since(start),
		}
	}

	var stdout, stderr bytes.Buffer
	res := r.execute(ctx, program, call, &stdout, &stderr)

	p := Prevalidation{
		Output:  stdout.String(),
		Elapsed: time.Since(start),
	}
	switch res.Kind {
	case OutcomeTimeout:
		p.Kind = CallTimeout
		p.Detail = res.Detail
	case OutcomeEvalError:
		p.Kind = CallPanics
		p.Detail = res.Detail
	default:
		if p.Output == "" && !subjectReturns(sig) {
			p.Kind = CallNoOutput
			p.Detail = "call completed with no return value and no output"
		} else {
			p.Kind = CallReturns
		}
	}

	logging.Sandbox("prevalidation of %s: %s", sig.Name, p.Kind)
	return p
}

func subjectReturns(sig signature.Signature) bool {
	return sig.ReturnType != ""
}
