package review

import (
	"go/ast"
	"go/token"
	"path"
	"strings"
)

// predeclared is the fixed allowlist of names that are always bound.
var predeclared = map[string]bool{
	// types
	"bool": true, "byte": true, "complex64": true, "complex128": true,
	"error": true, "float32": true, "float64": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"rune": true, "string": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "any": true, "comparable": true,
	// constants
	"true": true, "false": true, "iota": true, "nil": true,
	// functions
	"append": true, "cap": true, "clear": true, "close": true,
	"complex": true, "copy": true, "delete": true, "imag": true,
	"len": true, "make": true, "max": true, "min": true, "new": true,
	"panic": true, "print": true, "println": true, "real": true,
	"recover": true,
}

// sandboxPackages mirrors the sandbox import allowlist; their names
// resolve even in fragments that omit the import block.
var sandboxPackages = map[string]bool{
	"fmt": true, "strings": true, "strconv": true, "math": true,
	"sort": true, "errors": true, "unicode": true, "regexp": true,
	"bufio": true, "os": true, "time": true,
}

// Undefined is one unresolved name read.
type Undefined struct {
	Name       string
	Line       int
	Suggestion string
}

// scopeStack is an explicit stack of name sets. A scope is pushed
// around the file, each function body, and each block-creating
// statement, and popped on exit.
type scopeStack struct {
	scopes []map[string]bool
}

func newScopeStack() *scopeStack {
	return &scopeStack{scopes: []map[string]bool{{}}}
}

func (s *scopeStack) push() {
	s.scopes = append(s.scopes, map[string]bool{})
}

func (s *scopeStack) pop() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func (s *scopeStack) bind(name string) {
	if name == "" || name == "_" {
		return
	}
	s.scopes[len(s.scopes)-1][name] = true
}

func (s *scopeStack) resolve(name string) bool {
	if predeclared[name] {
		return true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i][name] {
			return true
		}
	}
	return false
}

// suggest returns a bound name sharing a prefix of at least three
// characters with the unresolved name, preferring the longest match.
func (s *scopeStack) suggest(name string) string {
	best := ""
	bestLen := 2
	for _, scope := range s.scopes {
		for bound := range scope {
			n := commonPrefixLen(name, bound)
			if n > bestLen {
				best = bound
				bestLen = n
			}
		}
	}
	return best
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// resolver walks a file and records every name read that no enclosing
// scope binds.
type resolver struct {
	fset    *token.FileSet
	scopes  *scopeStack
	missing []Undefined
	seen    map[string]bool
}

// resolveIdentifiers checks every identifier read in the file against
// the scope stack and returns the unresolved ones in source order.
func resolveIdentifiers(fset *token.FileSet, file *ast.File) []Undefined {
	r := &resolver{
		fset:   fset,
		scopes: newScopeStack(),
		seen:   map[string]bool{},
	}

	// File scope first: every top-level declaration is visible from
	// anywhere in the file, regardless of order.
	for _, imp := range file.Imports {
		r.scopes.bind(importName(imp))
	}
	// Sandbox-allowlisted packages are importable whether or not the
	// fragment spelled the import out; the sandbox repairs the block.
	for pkg := range sandboxPackages {
		r.scopes.bind(pkg)
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				r.scopes.bind(d.Name.Name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch sp := spec.(type) {
				case *ast.ValueSpec:
					for _, n := range sp.Names {
						r.scopes.bind(n.Name)
					}
				case *ast.TypeSpec:
					r.scopes.bind(sp.Name.Name)
				}
			}
		}
	}

	// Top-level value expressions read names too.
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok {
			for _, spec := range gd.Specs {
				if vs, ok := spec.(*ast.ValueSpec); ok {
					for _, v := range vs.Values {
						r.expr(v)
					}
				}
			}
		}
	}

	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			r.funcDecl(fn)
		}
	}

	return r.missing
}

func importName(imp *ast.ImportSpec) string {
	if imp.Name != nil {
		return imp.Name.Name
	}
	p := strings.Trim(imp.Path.Value, `"`)
	return path.Base(p)
}

func (r *resolver) report(id *ast.Ident) {
	if r.seen[id.Name] {
		return
	}
	r.seen[id.Name] = true
	r.missing = append(r.missing, Undefined{
		Name:       id.Name,
		Line:       r.fset.Position(id.Pos()).Line,
		Suggestion: r.scopes.suggest(id.Name),
	})
}

func (r *resolver) read(id *ast.Ident) {
	if id == nil || id.Name == "_" {
		return
	}
	if !r.scopes.resolve(id.Name) {
		r.report(id)
	}
}

func (r *resolver) funcDecl(fn *ast.FuncDecl) {
	r.scopes.push()
	defer r.scopes.pop()

	if fn.Recv != nil {
		for _, f := range fn.Recv.List {
			for _, n := range f.Names {
				r.scopes.bind(n.Name)
			}
		}
	}
	r.bindFieldList(fn.Type.Params)
	r.bindFieldList(fn.Type.Results)
	if fn.Body != nil {
		r.stmtList(fn.Body.List)
	}
}

func (r *resolver) bindFieldList(fl *ast.FieldList) {
	if fl == nil {
		return
	}
	for _, f := range fl.List {
		r.typeExpr(f.Type)
		for _, n := range f.Names {
			r.scopes.bind(n.Name)
		}
	}
}

func (r *resolver) block(stmts []ast.Stmt) {
	r.scopes.push()
	r.stmtList(stmts)
	r.scopes.pop()
}

func (r *resolver) stmtList(stmts []ast.Stmt) {
	for _, s := range stmts {
		r.stmt(s)
	}
}

func (r *resolver) stmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		for _, rhs := range st.Rhs {
			r.expr(rhs)
		}
		for _, lhs := range st.Lhs {
			if id, ok := lhs.(*ast.Ident); ok {
				if st.Tok == token.DEFINE {
					r.scopes.bind(id.Name)
				} else {
					r.read(id)
				}
				continue
			}
			r.expr(lhs)
		}
	case *ast.DeclStmt:
		gd, ok := st.Decl.(*ast.GenDecl)
		if !ok {
			return
		}
		for _, spec := range gd.Specs {
			switch sp := spec.(type) {
			case *ast.ValueSpec:
				r.typeExpr(sp.Type)
				for _, v := range sp.Values {
					r.expr(v)
				}
				for _, n := range sp.Names {
					r.scopes.bind(n.Name)
				}
			case *ast.TypeSpec:
				r.scopes.bind(sp.Name.Name)
				r.typeExpr(sp.Type)
			}
		}
	case *ast.ExprStmt:
		r.expr(st.X)
	case *ast.IncDecStmt:
		r.expr(st.X)
	case *ast.SendStmt:
		r.expr(st.Chan)
		r.expr(st.Value)
	case *ast.GoStmt:
		r.expr(st.Call)
	case *ast.DeferStmt:
		r.expr(st.Call)
	case *ast.ReturnStmt:
		for _, e := range st.Results {
			r.expr(e)
		}
	case *ast.BlockStmt:
		r.block(st.List)
	case *ast.IfStmt:
		r.scopes.push()
		if st.Init != nil {
			r.stmt(st.Init)
		}
		r.expr(st.Cond)
		r.block(st.Body.List)
		if st.Else != nil {
			r.stmt(st.Else)
		}
		r.scopes.pop()
	case *ast.ForStmt:
		r.scopes.push()
		if st.Init != nil {
			r.stmt(st.Init)
		}
		if st.Cond != nil {
			r.expr(st.Cond)
		}
		if st.Post != nil {
			r.stmt(st.Post)
		}
		r.block(st.Body.List)
		r.scopes.pop()
	case *ast.RangeStmt:
		r.scopes.push()
		r.expr(st.X)
		bindOrRead := func(e ast.Expr) {
			id, ok := e.(*ast.Ident)
			if !ok {
				r.expr(e)
				return
			}
			if st.Tok == token.DEFINE {
				r.scopes.bind(id.Name)
			} else {
				r.read(id)
			}
		}
		if st.Key != nil {
			bindOrRead(st.Key)
		}
		if st.Value != nil {
			bindOrRead(st.Value)
		}
		r.block(st.Body.List)
		r.scopes.pop()
	case *ast.SwitchStmt:
		r.scopes.push()
		if st.Init != nil {
			r.stmt(st.Init)
		}
		if st.Tag != nil {
			r.expr(st.Tag)
		}
		for _, c := range st.Body.List {
			cc := c.(*ast.CaseClause)
			r.scopes.push()
			for _, e := range cc.List {
				r.expr(e)
			}
			r.stmtList(cc.Body)
			r.scopes.pop()
		}
		r.scopes.pop()
	case *ast.TypeSwitchStmt:
		r.scopes.push()
		if st.Init != nil {
			r.stmt(st.Init)
		}
		var bound string
		switch a := st.Assign.(type) {
		case *ast.AssignStmt:
			// x := y.(type) binds x fresh in every case clause
			if len(a.Rhs) == 1 {
				r.expr(a.Rhs[0])
			}
			if len(a.Lhs) == 1 {
				if id, ok := a.Lhs[0].(*ast.Ident); ok {
					bound = id.Name
				}
			}
		case *ast.ExprStmt:
			r.expr(a.X)
		}
		for _, c := range st.Body.List {
			cc := c.(*ast.CaseClause)
			r.scopes.push()
			r.scopes.bind(bound)
			for _, e := range cc.List {
				r.typeExpr(e)
			}
			r.stmtList(cc.Body)
			r.scopes.pop()
		}
		r.scopes.pop()
	case *ast.SelectStmt:
		for _, c := range st.Body.List {
			cc := c.(*ast.CommClause)
			r.scopes.push()
			if cc.Comm != nil {
				r.stmt(cc.Comm)
			}
			r.stmtList(cc.Body)
			r.scopes.pop()
		}
	case *ast.LabeledStmt:
		r.scopes.bind(st.Label.Name)
		r.stmt(st.Stmt)
	case *ast.BranchStmt:
		// Label lives in a separate namespace; nothing to resolve here.
	}
}

func (r *resolver) expr(e ast.Expr) {
	switch ex := e.(type) {
	case nil:
	case *ast.Ident:
		r.read(ex)
	case *ast.BasicLit:
	case *ast.SelectorExpr:
		// Only the receiver side is a read; ex.Sel names a member of
		// whatever X resolves to.
		r.expr(ex.X)
	case *ast.CallExpr:
		r.expr(ex.Fun)
		for _, a := range ex.Args {
			r.expr(a)
		}
	case *ast.BinaryExpr:
		r.expr(ex.X)
		r.expr(ex.Y)
	case *ast.UnaryExpr:
		r.expr(ex.X)
	case *ast.ParenExpr:
		r.expr(ex.X)
	case *ast.StarExpr:
		r.expr(ex.X)
	case *ast.IndexExpr:
		r.expr(ex.X)
		r.expr(ex.Index)
	case *ast.IndexListExpr:
		r.expr(ex.X)
		for _, i := range ex.Indices {
			r.expr(i)
		}
	case *ast.SliceExpr:
		r.expr(ex.X)
		r.expr(ex.Low)
		r.expr(ex.High)
		r.expr(ex.Max)
	case *ast.TypeAssertExpr:
		r.expr(ex.X)
		r.typeExpr(ex.Type)
	case *ast.CompositeLit:
		r.typeExpr(ex.Type)
		for _, elt := range ex.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				// Ident keys are struct field names, not reads.
				if _, isIdent := kv.Key.(*ast.Ident); !isIdent {
					r.expr(kv.Key)
				}
				r.expr(kv.Value)
				continue
			}
			r.expr(elt)
		}
	case *ast.FuncLit:
		r.scopes.push()
		r.bindFieldList(ex.Type.Params)
		r.bindFieldList(ex.Type.Results)
		if ex.Body != nil {
			r.stmtList(ex.Body.List)
		}
		r.scopes.pop()
	default:
		r.typeExpr(e)
	}
}

// typeExpr resolves identifiers appearing in type position.
func (r *resolver) typeExpr(e ast.Expr) {
	switch t := e.(type) {
	case nil:
	case *ast.Ident:
		r.read(t)
	case *ast.SelectorExpr:
		r.expr(t.X)
	case *ast.StarExpr:
		r.typeExpr(t.X)
	case *ast.ArrayType:
		r.expr(t.Len)
		r.typeExpr(t.Elt)
	case *ast.MapType:
		r.typeExpr(t.Key)
		r.typeExpr(t.Value)
	case *ast.ChanType:
		r.typeExpr(t.Value)
	case *ast.FuncType:
		for _, fl := range []*ast.FieldList{t.Params, t.Results} {
			if fl == nil {
				continue
			}
			for _, f := range fl.List {
				r.typeExpr(f.Type)
			}
		}
	case *ast.StructType:
		if t.Fields != nil {
			for _, f := range t.Fields.List {
				r.typeExpr(f.Type)
			}
		}
	case *ast.InterfaceType:
		if t.Methods != nil {
			for _, f := range t.Methods.List {
				r.typeExpr(f.Type)
			}
		}
	case *ast.Ellipsis:
		r.typeExpr(t.Elt)
	}
}
