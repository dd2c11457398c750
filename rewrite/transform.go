package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
	"github.com/dave/dst/dstutil"
	"github.com/rs/zerolog/log"
)

const (
	// RuntimePath is the package generated code calls into.
	RuntimePath = "github.com/mrproliu/flatprof"

	runtimeName     = "_flatprof"
	invocationName  = "_fp_inv"
	generatedPrefix = "_flatprof_"
	argPrefix       = "_fp_a"
)

// File is a parsed and type-checked Go source file.
type File struct {
	Name string
	Fset *token.FileSet
	AST  *ast.File
	Src  []byte
	Pkg  *types.Package
	Info *types.Info
}

type Options struct {
	// Defaults apply to options a directive leaves out.
	Defaults Directive
	// Details, if set, receives every rewritten function.
	Details func(Details)
	// LineDirectives keeps compiler positions pointing at the original file
	// by adding line directives before declarations and statements.
	LineDirectives bool
}

// Result is the rewritten file. Funcs lists the qualified names of the
// instrumented functions; it is empty when the file was left unchanged.
type Result struct {
	File  *dst.File
	Funcs []string
}

func (r *Result) Changed() bool {
	return len(r.Funcs) > 0
}

type callKind int

const (
	skipCall callKind = iota
	wrapCall
	builtinValue
	builtinVoid
)

// site is the static description of one instrumented call.
type site struct {
	firstLine int
	lastLine  int
	source    string
	builtin   string
}

type transformer struct {
	file  *File
	opts  Options
	dec   *decorator.Decorator
	namer *callNamer
	qual  *importQualifier
}

// Transform instruments every function of the file carrying a
// //flatprof:profile directive.
func Transform(f *File, opts Options) (*Result, error) {
	dec := decorator.NewDecorator(f.Fset)
	df, err := dec.DecorateFile(f.AST)
	if err != nil {
		return nil, err
	}
	t := &transformer{
		file: f,
		opts: opts,
		dec:  dec,
		qual: newImportQualifier(f.AST, f.Pkg, f.Info),
	}
	t.namer = &callNamer{info: f.Info, text: t.text}

	result := &Result{File: df}
	var generated []dst.Decl
	for _, decl := range df.Decls {
		fd, ok := decl.(*dst.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		afd, ok := dec.Ast.Nodes[fd].(*ast.FuncDecl)
		if !ok {
			continue
		}
		options, ok := findDirective(afd.Doc)
		if !ok {
			continue
		}
		pos := f.Fset.Position(afd.Pos())
		directive, err := ParseDirective(options, opts.Defaults)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", pos, afd.Name.Name, err)
		}
		if alreadyInstrumented(fd) {
			log.Warn().Str("func", afd.Name.Name).Str("position", pos.String()).Msg("function is already instrumented")
			continue
		}
		name, decls, err := t.instrument(fd, afd, directive)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", pos, afd.Name.Name, err)
		}
		generated = append(generated, decls...)
		result.Funcs = append(result.Funcs, name)
	}

	if result.Changed() {
		if opts.LineDirectives {
			t.declLineDirectives(df)
		}
		addImport(df, runtimeName, RuntimePath)
		df.Decls = append(df.Decls, generated...)
	}
	return result, nil
}

// declLineDirectives puts a //line comment above every declaration.
func (t *transformer) declLineDirectives(df *dst.File) {
	for _, decl := range df.Decls {
		var start token.Pos
		switch d := t.dec.Ast.Nodes[decl].(type) {
		case *ast.FuncDecl:
			start = d.Pos()
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
		case *ast.GenDecl:
			start = d.Pos()
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
		default:
			continue
		}
		pos := t.file.Fset.Position(start)
		decl.Decorations().Start.Prepend(fmt.Sprintf("//line %s:%d", pos.Filename, pos.Line))
	}
}

// stmtLineDirectives puts a /*line*/ comment before every statement of body.
func (t *transformer) stmtLineDirectives(body *dst.BlockStmt) {
	for _, stmt := range body.List {
		astStmt, ok := t.dec.Ast.Nodes[stmt].(ast.Stmt)
		if !ok {
			continue
		}
		pos := t.file.Fset.Position(astStmt.Pos())
		stmt.Decorations().Start.Prepend(fmt.Sprintf("/*line %s:%d:%d*/", pos.Filename, pos.Line, pos.Column))
	}
}

func alreadyInstrumented(fd *dst.FuncDecl) bool {
	if len(fd.Body.List) == 0 {
		return false
	}
	assign, ok := fd.Body.List[0].(*dst.AssignStmt)
	if !ok || len(assign.Lhs) != 1 {
		return false
	}
	ident, ok := assign.Lhs[0].(*dst.Ident)
	return ok && ident.Name == invocationName
}

func (t *transformer) instrument(fd *dst.FuncDecl, afd *ast.FuncDecl, d Directive) (string, []dst.Decl, error) {
	filter, err := NewFilter(d.IgnoreBuiltins, d.Blacklist, d.Whitelist)
	if err != nil {
		return "", nil, err
	}
	qualified := t.qualifiedName(afd)
	if len(d.Whitelist) > 0 && d.IgnoreBuiltins {
		log.Warn().Str("func", qualified).Msg("whitelist used with ignore_builtins, whitelisted builtins are not instrumented")
	}

	profVar := generatedPrefix + t.funcID(afd)
	sitesVar := profVar + "_sites"
	original := t.text(afd)

	var sites []site
	skipped := 0
	inGo := make(map[*dst.CallExpr]bool)
	deferred := make(map[*dst.CallExpr]bool)

	if t.opts.LineDirectives {
		t.stmtLineDirectives(fd.Body)
	}

	var acall *ast.CallExpr
	reportSkip := func(err error) error {
		if err != nil {
			skipped++
			log.Warn().Err(err).Str("func", qualified).Str("call", t.text(acall)).
				Str("position", t.file.Fset.Position(acall.Pos()).String()).Msg("call not instrumented")
		}
		return err
	}

	dstutil.Apply(fd.Body, func(c *dstutil.Cursor) bool {
		switch n := c.Node().(type) {
		case *dst.FuncLit:
			// calls inside function literals belong to another function body
			return false
		case *dst.GoStmt:
			inGo[n.Call] = true
		case *dst.DeferStmt:
			deferred[n.Call] = true
		}
		return true
	}, func(c *dstutil.Cursor) bool {
		call, ok := c.Node().(*dst.CallExpr)
		if !ok {
			return true
		}
		if acall, ok = t.dec.Ast.Nodes[call].(*ast.CallExpr); !ok {
			return true
		}
		kind, reason := t.classify(acall, inGo[call], deferred[call])
		if kind == skipCall {
			if reason != "" {
				skipped++
				log.Debug().Str("func", qualified).Str("call", t.text(acall)).Str("reason", reason).Msg("call not instrumented")
			}
			return true
		}
		if !filter.ShouldWrap(t.namer.name(acall.Fun), kind != wrapCall) {
			return true
		}

		index := len(sites)
		ref := &dst.UnaryExpr{
			Op: token.AND,
			X: &dst.IndexExpr{
				X:     dst.NewIdent(sitesVar),
				Index: &dst.BasicLit{Kind: token.INT, Value: strconv.Itoa(index)},
			},
		}

		var replacement dst.Expr
		if kind == wrapCall {
			fun, err := t.instantiate(call.Fun, acall.Fun)
			if reportSkip(err) != nil {
				return true
			}
			call.Fun = &dst.CallExpr{
				Fun:  runtimeSel("Wrap"),
				Args: []dst.Expr{dst.NewIdent(invocationName), ref, fun},
			}
		} else {
			var err error
			if replacement, err = t.builtinCall(call, acall, ref); reportSkip(err) != nil {
				return true
			}
		}
		sites = append(sites, t.site(acall, kind))
		if replacement != nil {
			c.Replace(replacement)
		}
		return true
	})

	prologue, err := goStringToStmts(fmt.Sprintf("%s := %s.Begin()\ndefer %s.End()", invocationName, profVar, invocationName))
	if err != nil {
		return "", nil, err
	}
	prologue[len(prologue)-1].Decorations().After = dst.EmptyLine
	fd.Body.List = append(prologue, fd.Body.List...)

	decls, err := goStringToDecls(t.declarations(qualified, profVar, sitesVar, d, sites))
	if err != nil {
		return "", nil, err
	}
	decls[0].Decorations().Before = dst.EmptyLine

	if t.opts.Details != nil {
		t.opts.Details(Details{
			Func:      qualified,
			Position:  t.file.Fset.Position(afd.Pos()).String(),
			Original:  original,
			Rewritten: t.printFunc(fd),
			Sites:     len(sites),
			Skipped:   skipped,
		})
	}
	log.Debug().Str("func", qualified).Int("sites", len(sites)).Int("skipped", skipped).Msg("function instrumented")
	return qualified, decls, nil
}

// classify decides how a call expression can be instrumented. A reason is
// returned for calls that are left alone although they are real calls.
func (t *transformer) classify(call *ast.CallExpr, inGo, deferred bool) (callKind, string) {
	info := t.file.Info
	if t.isType(call.Fun) {
		return skipCall, ""
	}
	if tv, ok := info.Types[call]; ok && tv.Value != nil {
		return skipCall, ""
	}
	if deferred {
		// recover only works when called directly by the deferred function
		return skipCall, "deferred call"
	}
	if inGo {
		return skipCall, "call runs on another goroutine"
	}
	if t.isBuiltin(call.Fun) {
		switch builtinName(call.Fun) {
		case "panic", "recover":
			return skipCall, "panic and recover must be called directly"
		}
		if tv, ok := info.Types[call]; ok && tv.IsVoid() {
			return builtinVoid, ""
		}
		return builtinValue, ""
	}
	return wrapCall, ""
}

func (t *transformer) isType(fun ast.Expr) bool {
	if tv, ok := t.file.Info.Types[fun]; ok && tv.IsType() {
		return true
	}
	if id := calleeIdent(fun); id != nil {
		_, ok := t.file.Info.Uses[id].(*types.TypeName)
		return ok
	}
	return false
}

func (t *transformer) isBuiltin(fun ast.Expr) bool {
	if tv, ok := t.file.Info.Types[fun]; ok && tv.IsBuiltin() {
		return true
	}
	if id := calleeIdent(fun); id != nil {
		_, ok := t.file.Info.Uses[id].(*types.Builtin)
		return ok
	}
	return false
}

// instantiate spells out inferred type arguments of a generic callee, since
// a generic function cannot be passed to Wrap uninstantiated.
func (t *transformer) instantiate(fun dst.Expr, afun ast.Expr) (dst.Expr, error) {
	base, abase, explicit := fun, afun, 0
	switch e := afun.(type) {
	case *ast.IndexExpr:
		abase, explicit = e.X, 1
		base = fun.(*dst.IndexExpr).X
	case *ast.IndexListExpr:
		abase, explicit = e.X, len(e.Indices)
		base = fun.(*dst.IndexListExpr).X
	}
	id := calleeIdent(abase)
	if id == nil {
		return fun, nil
	}
	inst, ok := t.file.Info.Instances[id]
	if !ok || inst.TypeArgs.Len() == explicit {
		return fun, nil
	}

	args := make([]dst.Expr, 0, inst.TypeArgs.Len())
	for i := 0; i < inst.TypeArgs.Len(); i++ {
		expr, err := t.typeExpr(inst.TypeArgs.At(i))
		if err != nil {
			return nil, err
		}
		args = append(args, expr)
	}
	if len(args) == 1 {
		return &dst.IndexExpr{X: base, Index: args[0]}, nil
	}
	return &dst.IndexListExpr{X: base, Indices: args}, nil
}

// builtinCall rewrites a builtin call into a function literal called with
// the builtin's evaluated arguments, e.g. len(load()) becomes
//
//	func(_fp_a0 []int) int {
//		defer _fp_inv.Start(&sites[i]).Stop()
//		return len(_fp_a0)
//	}(load())
//
// so the timer starts once the arguments are evaluated and stops from a defer.
// Type and constant arguments stay inline.
func (t *transformer) builtinCall(call *dst.CallExpr, acall *ast.CallExpr, ref dst.Expr) (dst.Expr, error) {
	info := t.file.Info
	var (
		params  []*dst.Field
		indices []int
	)
	for i, aarg := range acall.Args {
		tv, ok := info.Types[aarg]
		if !ok {
			return nil, fmt.Errorf("no type for argument %d", i)
		}
		if tv.IsType() || tv.Value != nil || tv.IsNil() {
			continue
		}
		typ, err := t.typeExpr(tv.Type)
		if err != nil {
			return nil, err
		}
		params = append(params, &dst.Field{Names: []*dst.Ident{dst.NewIdent(fmt.Sprintf("%s%d", argPrefix, i))}, Type: typ})
		indices = append(indices, i)
	}
	var results *dst.FieldList
	if tv := info.Types[acall]; !tv.IsVoid() {
		typ, err := t.typeExpr(tv.Type)
		if err != nil {
			return nil, err
		}
		results = &dst.FieldList{List: []*dst.Field{{Type: typ}}}
	}

	args := make([]dst.Expr, 0, len(indices))
	for _, i := range indices {
		args = append(args, call.Args[i])
		call.Args[i] = dst.NewIdent(fmt.Sprintf("%s%d", argPrefix, i))
	}
	final := dst.Stmt(&dst.ExprStmt{X: call})
	if results != nil {
		final = &dst.ReturnStmt{Results: []dst.Expr{call}}
	}

	stop := &dst.DeferStmt{Call: &dst.CallExpr{
		Fun: &dst.SelectorExpr{X: startStamp(ref), Sel: dst.NewIdent("Stop")},
	}}
	// one statement per line, the printer would otherwise join a short body
	stop.Decs.Before = dst.NewLine
	final.Decorations().Before = dst.NewLine
	final.Decorations().After = dst.NewLine

	lit := &dst.CallExpr{
		Fun: &dst.FuncLit{
			Type: &dst.FuncType{Func: true, Params: &dst.FieldList{List: params}, Results: results},
			Body: &dst.BlockStmt{List: []dst.Stmt{stop, final}},
		},
		Args: args,
	}
	lit.Decs.NodeDecs = call.Decs.NodeDecs
	call.Decs.NodeDecs = dst.NodeDecs{}
	return lit, nil
}

// typeExpr spells t as the file would, untyped values get their default type.
func (t *transformer) typeExpr(typ types.Type) (dst.Expr, error) {
	if _, ok := typ.(*types.Tuple); ok {
		return nil, fmt.Errorf("multi-value argument %s", typ)
	}
	typ = types.Default(typ)
	s, ok := t.qual.typeString(typ)
	if !ok {
		return nil, fmt.Errorf("type %s cannot be named in this file", typ)
	}
	return goStringToTypeExpr(s)
}

func (t *transformer) site(call *ast.CallExpr, kind callKind) site {
	s := site{
		firstLine: t.file.Fset.Position(call.Pos()).Line,
		lastLine:  t.file.Fset.Position(call.End()).Line,
		source:    t.text(call),
	}
	if kind != wrapCall {
		s.builtin = builtinName(call.Fun)
	}
	return s
}

// text returns the source of a node as written, or as printed when the
// original bytes are not available.
func (t *transformer) text(node ast.Node) string {
	if t.file.Src != nil {
		if tf := t.file.Fset.File(node.Pos()); tf != nil {
			start, end := tf.Offset(node.Pos()), tf.Offset(node.End())
			if start >= 0 && end <= len(t.file.Src) && start <= end {
				return string(t.file.Src[start:end])
			}
		}
	}
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, t.file.Fset, node); err != nil {
		return ""
	}
	return buf.String()
}

func (t *transformer) printFunc(fd *dst.FuncDecl) string {
	file := &dst.File{
		Name:  dst.NewIdent(t.file.AST.Name.Name),
		Decls: []dst.Decl{dst.Clone(fd).(*dst.FuncDecl)},
	}
	var buf bytes.Buffer
	if err := WriteFile(file, &buf); err != nil {
		return ""
	}
	out := buf.String()
	if i := strings.Index(out, "\n\n"); i >= 0 {
		out = out[i+2:]
	}
	return strings.TrimSpace(out)
}

// qualifiedName renders the function like the runtime does, e.g. "main.run"
// or "store.(*DB).Get".
func (t *transformer) qualifiedName(fd *ast.FuncDecl) string {
	pkg := t.file.AST.Name.Name
	if fd.Recv == nil || len(fd.Recv.List) == 0 {
		return pkg + "." + fd.Name.Name
	}
	recv, pointer := receiverType(fd.Recv.List[0].Type)
	if pointer {
		return fmt.Sprintf("%s.(*%s).%s", pkg, recv, fd.Name.Name)
	}
	return fmt.Sprintf("%s.%s.%s", pkg, recv, fd.Name.Name)
}

// funcID names the generated declarations of a function, e.g. "run" or
// "Server_Handle" for a method. Method names that can also be spelled by
// another function or method of the package get the file and line appended.
func (t *transformer) funcID(fd *ast.FuncDecl) string {
	id := fd.Name.Name
	pos := t.file.Fset.Position(fd.Pos())
	suffix := fmt.Sprintf("_%s_L%d", identSafe(filepath.Base(pos.Filename)), pos.Line)
	if fd.Name.Name == "init" || fd.Name.Name == "_" {
		return id + suffix
	}
	if fd.Recv != nil && len(fd.Recv.List) > 0 {
		recv, _ := receiverType(fd.Recv.List[0].Type)
		id = recv + "_" + id
		if t.ambiguous(id, recv, fd.Name.Name) {
			id += suffix
		}
	}
	return id
}

// ambiguous reports whether a function or another method of the package
// shares the generated id of method recv.name.
func (t *transformer) ambiguous(id, recv, name string) bool {
	scope := t.file.Pkg.Scope()
	if _, ok := scope.Lookup(id).(*types.Func); ok {
		return true
	}
	for _, n := range scope.Names() {
		tn, ok := scope.Lookup(n).(*types.TypeName)
		if !ok {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		for i := 0; i < named.NumMethods(); i++ {
			m := named.Method(i).Name()
			if n+"_"+m == id && (n != recv || m != name) {
				return true
			}
		}
	}
	return false
}

func identSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}

func receiverType(expr ast.Expr) (name string, pointer bool) {
	switch e := expr.(type) {
	case *ast.StarExpr:
		name, _ = receiverType(e.X)
		return name, true
	case *ast.ParenExpr:
		return receiverType(e.X)
	case *ast.IndexExpr:
		return receiverType(e.X)
	case *ast.IndexListExpr:
		return receiverType(e.X)
	case *ast.Ident:
		return e.Name, false
	}
	return "recv", false
}

func (t *transformer) declarations(qualified, profVar, sitesVar string, d Directive, sites []site) string {
	var b strings.Builder
	fmt.Fprintf(&b, "var %s = %s.MustNew(%s, %s.Config{\n", profVar, runtimeName, strconv.Quote(qualified), runtimeName)
	fmt.Fprintf(&b, "\tLimit: %d, // %s\n", int64(d.Limit), d.Limit)
	if cb := callbackExpr(d.Below, "LogBelow"); cb != "" {
		fmt.Fprintf(&b, "\tBelow: %s,\n", cb)
	}
	if cb := callbackExpr(d.Above, "LogAbove"); cb != "" {
		fmt.Fprintf(&b, "\tAbove: %s,\n", cb)
	}
	b.WriteString("})\n")
	if len(sites) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\nvar %s = [...]%s.Site{\n", sitesVar, runtimeName)
	for _, s := range sites {
		fmt.Fprintf(&b, "\t{FirstLine: %d, LastLine: %d, Source: %s", s.firstLine, s.lastLine, strconv.Quote(s.source))
		if s.builtin != "" {
			fmt.Fprintf(&b, ", Builtin: %s", strconv.Quote(s.builtin))
		}
		b.WriteString("},\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func callbackExpr(value, fallback string) string {
	switch value {
	case "":
		return runtimeName + "." + fallback
	case NoCallback:
		return ""
	}
	return value
}

func runtimeSel(name string) *dst.SelectorExpr {
	return &dst.SelectorExpr{X: dst.NewIdent(runtimeName), Sel: dst.NewIdent(name)}
}

// startStamp builds _fp_inv.Start(&sites[i]).
func startStamp(ref dst.Expr) *dst.CallExpr {
	return &dst.CallExpr{
		Fun:  &dst.SelectorExpr{X: dst.NewIdent(invocationName), Sel: dst.NewIdent("Start")},
		Args: []dst.Expr{ref},
	}
}
