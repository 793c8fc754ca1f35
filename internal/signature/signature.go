// Package signature extracts the callable surface of a candidate:
// its subject function name, parameters, and declared return type.
// Extraction degrades instead of failing: a malformed candidate falls
// back to a lexical scan, and if that also fails the caller gets the
// unknown-signature sentinel.
package signature

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"regexp"
	"strings"
)

// Param is one declared parameter.
type Param struct {
	Name string
	Type string
}

// Signature describes a candidate's callable surface. Derived fresh
// from each candidate; never mutated after extraction.
type Signature struct {
	Name       string
	Params     []Param
	ReturnType string
}

// UnknownName is the sentinel subject name used when extraction fails.
const UnknownName = "unknown"

// Unknown returns the zero-parameter sentinel signature.
func Unknown() Signature {
	return Signature{Name: UnknownName}
}

// IsUnknown reports whether s is the fallback sentinel.
func (s Signature) IsUnknown() bool {
	return s.Name == UnknownName && len(s.Params) == 0
}

// ExtractionStage identifies how far extraction got before degrading.
type ExtractionStage int

const (
	StageParse ExtractionStage = iota
	StageRegex
)

func (s ExtractionStage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// ExtractionError records why the primary path could not produce a
// signature. It is a value, not a raised fault: callers always also
// receive a usable (possibly sentinel) Signature.
type ExtractionError struct {
	Stage   ExtractionStage
	Message string
}

func (e *ExtractionError) Error() string {
	return "signature extraction (" + e.Stage.String() + "): " + e.Message
}

// reservedNames are entry points and demo scaffolding, never the
// subject under test.
var reservedNames = map[string]bool{
	"main":        true,
	"init":        true,
	"run":         true,
	"interactive": true,
	"demo":        true,
	"start":       true,
}

func isReserved(name string) bool {
	if reservedNames[strings.ToLower(name)] {
		return true
	}
	return strings.HasPrefix(name, "_")
}

// Extract returns the subject signature of the candidate source.
// The second return value is non-nil when the primary parse path
// failed and a degraded path was used; the Signature is still valid
// (possibly the sentinel). Extract never panics.
func Extract(source string) (Signature, *ExtractionError) {
	if sig, ok := extractAST(source); ok {
		return sig, nil
	}

	parseErr := &ExtractionError{Stage: StageParse, Message: "no parseable subject function"}
	if sig, ok := extractRegex(source); ok {
		return sig, parseErr
	}

	return Unknown(), &ExtractionError{Stage: StageRegex, Message: "no function header found"}
}

// ParseFile parses candidate text, promoting a bare function fragment
// to a file by prepending a package clause when needed. The bool
// reports whether promotion happened.
func ParseFile(source string) (*ast.File, *token.FileSet, bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", source, 0)
	if err == nil {
		return file, fset, false, nil
	}

	promoted := "package main\n\n" + source
	fset2 := token.NewFileSet()
	file2, err2 := parser.ParseFile(fset2, "candidate.go", promoted, 0)
	if err2 == nil {
		return file2, fset2, true, nil
	}

	return nil, nil, false, err
}

func extractAST(source string) (Signature, bool) {
	file, fset, _, err := ParseFile(source)
	if err != nil {
		return Signature{}, false
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		if isReserved(fn.Name.Name) {
			continue
		}
		return fromFuncDecl(fset, fn), true
	}
	return Signature{}, false
}

func fromFuncDecl(fset *token.FileSet, fn *ast.FuncDecl) Signature {
	sig := Signature{Name: fn.Name.Name}

	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			typ := exprString(fset, field.Type)
			if len(field.Names) == 0 {
				sig.Params = append(sig.Params, Param{Name: "", Type: typ})
				continue
			}
			for _, name := range field.Names {
				sig.Params = append(sig.Params, Param{Name: name.Name, Type: typ})
			}
		}
	}

	if fn.Type.Results != nil && len(fn.Type.Results.List) > 0 {
		var parts []string
		for _, field := range fn.Type.Results.List {
			typ := exprString(fset, field.Type)
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				parts = append(parts, typ)
			}
		}
		if len(parts) == 1 {
			sig.ReturnType = parts[0]
		} else {
			sig.ReturnType = "(" + strings.Join(parts, ", ") + ")"
		}
	}

	return sig
}

func exprString(fset *token.FileSet, expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, expr); err != nil {
		return ""
	}
	return buf.String()
}

// funcHeaderRe matches a function header lexically when the source is
// too broken to parse.
var funcHeaderRe = regexp.MustCompile(`func\s+(\w+)\s*\(([^)]*)\)\s*([^{]*)\{`)

func extractRegex(source string) (Signature, bool) {
	for _, m := range funcHeaderRe.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if isReserved(name) {
			continue
		}
		sig := Signature{Name: name}
		params := strings.TrimSpace(m[2])
		if params != "" {
			for _, p := range strings.Split(params, ",") {
				fields := strings.Fields(strings.TrimSpace(p))
				switch len(fields) {
				case 0:
				case 1:
					// Bare name; type may be shared with a later
					// parameter, which the lexical path cannot see.
					sig.Params = append(sig.Params, Param{Name: fields[0]})
				default:
					sig.Params = append(sig.Params, Param{
						Name: fields[0],
						Type: strings.Join(fields[1:], " "),
					})
				}
			}
		}
		if ret := strings.TrimSpace(m[3]); ret != "" {
			sig.ReturnType = ret
		}
		return sig, true
	}
	return Signature{}, false
}
