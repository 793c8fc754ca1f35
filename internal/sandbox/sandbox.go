// Package sandbox executes synthesized tests against a candidate in a
// fresh embedded interpreter. Every run gets its own interpreter and
// capture buffers, a hard wall-clock timeout, and an import allowlist;
// nothing survives between runs.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/printer"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"codeloop/internal/logging"
	"codeloop/internal/signature"
	"codeloop/internal/synth"
)

// DefaultTimeout is the hard wall-clock cap per execution.
const DefaultTimeout = 30 * time.Second

// allowedPackages is the import allowlist for interpreted code.
var allowedPackages = map[string]bool{
	"fmt":     true,
	"strings": true,
	"strconv": true,
	"math":    true,
	"sort":    true,
	"errors":  true,
	"unicode": true,
	"regexp":  true,
	"bufio":   true,
	"os":      true,
	"time":    true,
}

// OutcomeKind classifies an execution result. A timeout is a distinct
// kind, never conflated with a failing assertion.
type OutcomeKind int

const (
	OutcomePassed OutcomeKind = iota
	OutcomeAssertionFailed
	OutcomeTimeout
	OutcomeEvalError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePassed:
		return "passed"
	case OutcomeAssertionFailed:
		return "assertion-failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeEvalError:
		return "eval-error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one sandboxed execution.
type Result struct {
	Passed  bool
	Kind    OutcomeKind
	Detail  string
	Output  string
	Elapsed time.Duration
}

// Runner executes candidates and their synthesized tests.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner. A non-positive timeout selects
// DefaultTimeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Run compiles the candidate and suite into one program, executes
// runTests in a fresh interpreter, and reports the outcome.
func (r *Runner) Run(ctx context.Context, candidate string, suite synth.Suite) Result {
	start := time.Now()
	log := logging.Get(logging.CategorySandbox)

	program, err := buildProgram(candidate, suite.Source)
	if err != nil {
		return Result{
			Kind:    OutcomeEvalError,
			Detail:  err.Error(),
			Elapsed: time.Since(start),
		}
	}

	var stdout, stderr bytes.Buffer
	outcome := r.execute(ctx, program, "main.runTests()", &stdout, &stderr)
	outcome.Output = stdout.String()
	outcome.Elapsed = time.Since(start)

	log.Info("run finished: %s in %v", outcome.Kind, outcome.Elapsed)
	return outcome
}

// execute evals the program and then the call expression, bounded by
// the runner timeout. The interpreter is discarded afterwards.
func (r *Runner) execute(ctx context.Context, program, call string, stdout, stderr *bytes.Buffer) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Result{Kind: OutcomeEvalError, Detail: fmt.Sprintf("interpreter setup: %v", err)}
	}

	type evalResult struct {
		failure error // non-nil test failure
		err     error // eval / runtime error
	}
	resultChan := make(chan evalResult, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultChan <- evalResult{err: fmt.Errorf("interpreter panic: %v", rec)}
			}
		}()

		if _, err := i.Eval(program); err != nil {
			resultChan <- evalResult{err: fmt.Errorf("program eval: %w", err)}
			return
		}
		v, err := i.Eval(call)
		if err != nil {
			resultChan <- evalResult{err: fmt.Errorf("call eval: %w", err)}
			return
		}
		if v.IsValid() {
			if callErr, ok := v.Interface().(error); ok && callErr != nil {
				resultChan <- evalResult{failure: callErr}
				return
			}
		}
		resultChan <- evalResult{}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return Result{Kind: OutcomeEvalError, Detail: res.err.Error()}
		}
		if res.failure != nil {
			return Result{Kind: OutcomeAssertionFailed, Detail: res.failure.Error()}
		}
		return Result{Passed: true, Kind: OutcomePassed}
	case <-ctx.Done():
		logging.SandboxWarn("execution exceeded %v", r.timeout)
		return Result{
			Kind:   OutcomeTimeout,
			Detail: fmt.Sprintf("execution exceeded the %v limit", r.timeout),
		}
	}
}

// ============================================================================
// PROGRAM ASSEMBLY
// ============================================================================

// buildProgram merges the candidate and test source into a single
// package main unit with a computed import block.
func buildProgram(candidate, testSource string) (string, error) {
	decls, candImports, err := candidateDecls(candidate)
	if err != nil {
		return "", fmt.Errorf("candidate does not parse: %w", err)
	}
	for _, imp := range candImports {
		if !allowedPackages[imp] {
			return "", fmt.Errorf("import %q is not allowed in the sandbox", imp)
		}
	}

	body := decls + "\n" + testSource
	imports := scanImports(body)

	var b strings.Builder
	b.WriteString("package main\n\n")
	if len(imports) > 0 {
		b.WriteString("import (\n")
		for _, imp := range imports {
			fmt.Fprintf(&b, "\t%q\n", imp)
		}
		b.WriteString(")\n\n")
	}
	b.WriteString(body)
	return b.String(), nil
}

// candidateDecls re-prints the candidate's declarations without its
// package clause and import block, so a fresh block can be computed
// for the merged program. A declared main is renamed so that loading
// the program defines the candidate without running it; only the
// eval'd call expression executes anything.
func candidateDecls(candidate string) (string, []string, error) {
	file, fset, _, err := signature.ParseFile(candidate)
	if err != nil {
		return "", nil, err
	}

	var imports []string
	for _, imp := range file.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}

	var b strings.Builder
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok.String() == "import" {
			continue
		}
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == "main" {
			fn.Name.Name = "candidateMain"
		}
		if err := printer.Fprint(&b, fset, decl); err != nil {
			return "", nil, err
		}
		b.WriteString("\n\n")
	}
	return b.String(), imports, nil
}

// scanImports returns the allowlisted packages the merged body
// actually references, in stable order. Scanning the body rather than
// trusting declared imports also repairs bare fragments that forgot
// theirs.
func scanImports(body string) []string {
	ordered := []string{
		"bufio", "errors", "fmt", "math", "os",
		"regexp", "sort", "strconv", "strings", "time", "unicode",
	}
	var used []string
	for _, pkg := range ordered {
		re := regexp.MustCompile(`\b` + pkg + `\.`)
		if re.MatchString(body) {
			used = append(used, pkg)
		}
	}
	return used
}
