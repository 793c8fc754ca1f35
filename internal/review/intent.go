package review

import (
	"context"
	"go/ast"
	"go/token"
	"strings"

	"codeloop/internal/task"
)

// checkIntent verifies the candidate's shape against what the task
// text implies. Returns nil when consistent. The keyword heuristics
// behind Intent are best-effort; these checks only enforce the shapes
// they clearly imply.
func checkIntent(in task.Intent, fset *token.FileSet, file *ast.File, subject string, adj int) *Verdict {
	if in.WantsLoop {
		loops := unboundedLoops(file)
		if len(loops) == 0 {
			v := rejected(RejectionIntent, 0,
				"task asks for a program that keeps running, but there is no unbounded loop (for { ... })")
			return &v
		}
		for _, loop := range loops {
			if line, ok := valueReturnInside(fset, loop.Body); ok {
				v := rejected(RejectionIntent, line-adj,
					"return inside the unbounded loop at line %d exits after one iteration; use fmt.Println to show the result and keep looping", line-adj)
				return &v
			}
		}
		if in.Interactive && entryFunc(file) == nil {
			v := rejected(RejectionIntent, 0,
				"interactive program needs an entry function (main) that drives the loop")
			return &v
		}
	}

	if line, name, ok := stdinReadOutsideEntry(fset, file); ok {
		v := rejected(RejectionIntent, line-adj,
			"function %q reads stdin at line %d; keep input in the entry function and pass values as parameters", name, line-adj)
		return &v
	}

	if in.WantsErrorHandling && !hasErrorHandling(file) {
		v := rejected(RejectionIntent, 0,
			"task asks for error handling, but there is no error check (if err != nil) or recover")
		return &v
	}

	if in.WantsReturn && !in.WantsLoop {
		if !subjectReturnsValue(file, subject) {
			v := rejected(RejectionIntent, 0,
				"task implies a computed result; %q must return a value, printing it is not sufficient", subject)
			return &v
		}
	} else if in.WantsDisplay && !hasPrintCall(file) {
		v := rejected(RejectionIntent, 0,
			"task asks to print or display output, but there is no fmt.Print call")
		return &v
	}

	return nil
}

// unboundedLoops returns every `for {}` or `for true {}` in the file,
// skipping loops inside function literals of other loops only in the
// sense that nesting does not matter here.
func unboundedLoops(file *ast.File) []*ast.ForStmt {
	var loops []*ast.ForStmt
	ast.Inspect(file, func(n ast.Node) bool {
		fs, ok := n.(*ast.ForStmt)
		if !ok {
			return true
		}
		if fs.Cond == nil && fs.Init == nil && fs.Post == nil {
			loops = append(loops, fs)
			return true
		}
		if id, ok := fs.Cond.(*ast.Ident); ok && id.Name == "true" {
			loops = append(loops, fs)
		}
		return true
	})
	return loops
}

// valueReturnInside reports a return statement carrying values inside
// the block, ignoring returns that belong to nested function literals.
func valueReturnInside(fset *token.FileSet, block *ast.BlockStmt) (int, bool) {
	line := 0
	found := false
	ast.Inspect(block, func(n ast.Node) bool {
		if found {
			return false
		}
		switch st := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.ReturnStmt:
			if len(st.Results) > 0 {
				line = fset.Position(st.Pos()).Line
				found = true
				return false
			}
		}
		return true
	})
	return line, found
}

func entryFunc(file *ast.File) *ast.FuncDecl {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		switch strings.ToLower(fn.Name.Name) {
		case "main", "run", "interactive":
			return fn
		}
	}
	return nil
}

func isEntryName(name string) bool {
	switch strings.ToLower(name) {
	case "main", "run", "interactive", "demo", "start":
		return true
	}
	return false
}

// stdinReadOutsideEntry finds user-input reads living in core logic
// instead of an entry function.
func stdinReadOutsideEntry(fset *token.FileSet, file *ast.File) (int, string, bool) {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil || isEntryName(fn.Name.Name) {
			continue
		}
		line := 0
		found := false
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			if found {
				return false
			}
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			if isStdinRead(call) {
				line = fset.Position(call.Pos()).Line
				found = true
				return false
			}
			return true
		})
		if found {
			return line, fn.Name.Name, true
		}
	}
	return 0, "", false
}

func isStdinRead(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}
	if pkg.Name == "fmt" && strings.HasPrefix(sel.Sel.Name, "Scan") {
		return true
	}
	if pkg.Name == "bufio" && sel.Sel.Name == "NewScanner" {
		// bufio.NewScanner(os.Stdin)
		if len(call.Args) == 1 {
			if arg, ok := call.Args[0].(*ast.SelectorExpr); ok {
				if x, ok := arg.X.(*ast.Ident); ok {
					return x.Name == "os" && arg.Sel.Name == "Stdin"
				}
			}
		}
	}
	return false
}

// hasErrorHandling looks for an err != nil comparison, a recover call,
// or use of the errors package.
func hasErrorHandling(file *ast.File) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if found {
			return false
		}
		switch ex := n.(type) {
		case *ast.BinaryExpr:
			if ex.Op == token.NEQ || ex.Op == token.EQL {
				if isErrNilComparison(ex) {
					found = true
				}
			}
		case *ast.CallExpr:
			if id, ok := ex.Fun.(*ast.Ident); ok && id.Name == "recover" {
				found = true
			}
			if sel, ok := ex.Fun.(*ast.SelectorExpr); ok {
				if x, ok := sel.X.(*ast.Ident); ok && x.Name == "errors" {
					found = true
				}
			}
		}
		return !found
	})
	return found
}

func isErrNilComparison(ex *ast.BinaryExpr) bool {
	isErrIdent := func(e ast.Expr) bool {
		id, ok := e.(*ast.Ident)
		return ok && (id.Name == "err" || strings.HasSuffix(id.Name, "Err") || strings.HasSuffix(id.Name, "err"))
	}
	isNil := func(e ast.Expr) bool {
		id, ok := e.(*ast.Ident)
		return ok && id.Name == "nil"
	}
	return (isErrIdent(ex.X) && isNil(ex.Y)) || (isNil(ex.X) && isErrIdent(ex.Y))
}

// subjectReturnsValue reports whether the named function both declares
// results and actually returns a value somewhere in its body.
func subjectReturnsValue(file *ast.File, subject string) bool {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != subject {
			continue
		}
		if fn.Type.Results == nil || len(fn.Type.Results.List) == 0 {
			return false
		}
		if fn.Body == nil {
			return false
		}
		hasReturn := false
		named := len(fn.Type.Results.List[0].Names) > 0
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			if hasReturn {
				return false
			}
			if _, ok := n.(*ast.FuncLit); ok {
				return false
			}
			if ret, ok := n.(*ast.ReturnStmt); ok {
				if len(ret.Results) > 0 || named {
					hasReturn = true
				}
			}
			return true
		})
		return hasReturn
	}
	return false
}

func hasPrintCall(file *ast.File) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if found {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
			if x, ok := sel.X.(*ast.Ident); ok && x.Name == "fmt" &&
				strings.HasPrefix(sel.Sel.Name, "Print") {
				found = true
			}
		}
		return !found
	})
	return found
}

// ============================================================================
// ADVISORY PASS
// ============================================================================

// advisoryPass asks the model for a qualitative judgment. Only an
// unambiguous REJECTED status produces a rejection; any transport or
// parse failure degrades to approval, since this pass is advisory.
func (r *Reviewer) advisoryPass(ctx context.Context, t task.Task, source string) *Verdict {
	resp, err := r.advisor.Review(ctx, t.Description, source)
	if err != nil {
		return nil
	}

	status, feedback := parseAdvisory(resp)
	if status == "REJECTED" {
		if feedback == "" {
			feedback = "model reviewer rejected the candidate without detail"
		}
		v := rejected(RejectionAdvisory, 0, "%s", feedback)
		return &v
	}
	return nil
}

// parseAdvisory extracts the STATUS and FEEDBACK lines from a model
// review response.
func parseAdvisory(resp string) (status, feedback string) {
	for _, line := range strings.Split(resp, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, "STATUS:"):
			s := strings.TrimSpace(trimmed[len("STATUS:"):])
			status = strings.ToUpper(s)
		case strings.HasPrefix(upper, "FEEDBACK:"):
			feedback = strings.TrimSpace(trimmed[len("FEEDBACK:"):])
		}
	}
	return status, feedback
}
