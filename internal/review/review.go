// Package review statically vets a candidate without executing it:
// syntax, scope-aware identifier resolution, structural policy, and
// task-intent consistency, in that order. The first failing check
// produces the verdict; later checks are skipped.
package review

import (
	"context"
	"fmt"
	"go/ast"
	"regexp"
	"strings"

	"codeloop/internal/logging"
	"codeloop/internal/signature"
	"codeloop/internal/task"
)

// RejectionKind classifies why a candidate was rejected.
type RejectionKind int

const (
	RejectionNone RejectionKind = iota
	RejectionSyntax
	RejectionIdentifier
	RejectionStructural
	RejectionIntent
	RejectionAdvisory
	RejectionInternal
)

func (k RejectionKind) String() string {
	switch k {
	case RejectionNone:
		return "none"
	case RejectionSyntax:
		return "syntax"
	case RejectionIdentifier:
		return "identifier"
	case RejectionStructural:
		return "structural"
	case RejectionIntent:
		return "intent"
	case RejectionAdvisory:
		return "advisory"
	case RejectionInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of a static review.
type Verdict struct {
	Approved bool
	Kind     RejectionKind
	Message  string
	Line     int
}

func approved() Verdict {
	return Verdict{Approved: true}
}

func rejected(kind RejectionKind, line int, format string, args ...interface{}) Verdict {
	return Verdict{
		Approved: false,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
	}
}

// Advisor is the optional model-backed qualitative pass, consulted
// only after every mechanical check passes. Its output is advisory.
type Advisor interface {
	Review(ctx context.Context, taskText, code string) (string, error)
}

// Reviewer performs static review of candidates.
type Reviewer struct {
	advisor Advisor
}

// New creates a reviewer. advisor may be nil, which skips the
// qualitative pass entirely.
func New(advisor Advisor) *Reviewer {
	return &Reviewer{advisor: advisor}
}

// indentedFuncRe catches a function header pushed off column zero,
// the usual shape of malformed continuation output.
var indentedFuncRe = regexp.MustCompile(`(?m)^[ \t]+func\s+\w+\s*\(`)

// Review vets the candidate against the task. It never panics past
// its boundary: any internal failure degrades to a rejection carrying
// a diagnostic.
func (r *Reviewer) Review(ctx context.Context, t task.Task, source string) (verdict Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Get(logging.CategoryReview).Error("review panic: %v", rec)
			verdict = rejected(RejectionInternal, 0, "internal review failure: %v", rec)
		}
	}()

	log := logging.Get(logging.CategoryReview)

	// 1. Syntax
	file, fset, promoted, err := signature.ParseFile(source)
	if err != nil {
		log.Info("rejected (syntax): %v", err)
		return rejected(RejectionSyntax, parseErrLine(err), "syntax error: %v", err)
	}

	// Bare fragments are promoted with a two-line package clause;
	// reported lines must map back to the candidate text.
	adj := 0
	if promoted {
		adj = 2
	}

	// 2. Identifier resolution
	if missing := resolveIdentifiers(fset, file); len(missing) > 0 {
		u := missing[0]
		u.Line -= adj
		msg := fmt.Sprintf("undefined name %q at line %d", u.Name, u.Line)
		if u.Suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", u.Suggestion)
		}
		log.Info("rejected (identifier): %s", msg)
		return rejected(RejectionIdentifier, u.Line, "%s", msg)
	}

	// 3. Structural policy
	if v := checkStructure(source, file); v != nil {
		log.Info("rejected (structural): %s", v.Message)
		return *v
	}

	// 4. Task-intent consistency
	sig, _ := signature.Extract(source)
	intent := task.DetectIntent(t.Description)
	if v := checkIntent(intent, fset, file, sig.Name, adj); v != nil {
		log.Info("rejected (intent): %s", v.Message)
		return *v
	}

	// 5. Advisory model pass
	if r.advisor != nil {
		if v := r.advisoryPass(ctx, t, source); v != nil {
			log.Info("rejected (advisory): %s", v.Message)
			return *v
		}
	}

	log.Debug("approved candidate for task %s", t.ID)
	return approved()
}

var lineRe = regexp.MustCompile(`:(\d+):`)

func parseErrLine(err error) int {
	m := lineRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	var line int
	fmt.Sscanf(m[1], "%d", &line)
	return line
}

// checkStructure enforces that the candidate actually declares a
// function and that no function header is indented.
func checkStructure(source string, file *ast.File) *Verdict {
	if m := indentedFuncRe.FindStringIndex(source); m != nil {
		line := strings.Count(source[:m[0]], "\n") + 1
		v := rejected(RejectionStructural, line,
			"function declaration at line %d is indented; declarations must start at column zero", line)
		return &v
	}

	for _, decl := range file.Decls {
		if _, ok := decl.(*ast.FuncDecl); ok {
			return nil
		}
	}
	v := rejected(RejectionStructural, 0, "candidate declares no function")
	return &v
}
