package rewrite

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
)

// callNamer derives the name a call site is filtered by from its callee
// expression: "f", "obj.method", "handlers[get]" (literal keys unquoted),
// "factory()" for calls of call results. Anything else falls back to the
// source text of the expression.
type callNamer struct {
	info *types.Info
	text func(ast.Node) string
}

func (n *callNamer) name(fun ast.Expr) string {
	switch e := fun.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return n.name(e.X) + "." + e.Sel.Name
	case *ast.ParenExpr:
		return n.name(e.X)
	case *ast.IndexExpr:
		if n.isType(e.Index) {
			return n.name(e.X)
		}
		return n.name(e.X) + "[" + n.key(e.Index) + "]"
	case *ast.IndexListExpr:
		return n.name(e.X)
	case *ast.CallExpr:
		return n.name(e.Fun) + "()"
	case *ast.StarExpr:
		return "*" + n.name(e.X)
	}
	return n.text(fun)
}

func (n *callNamer) key(index ast.Expr) string {
	switch e := index.(type) {
	case *ast.BasicLit:
		switch e.Kind {
		case token.STRING, token.CHAR:
			if v, err := strconv.Unquote(e.Value); err == nil {
				return v
			}
		}
		return e.Value
	case *ast.Ident:
		return e.Name
	}
	return n.text(index)
}

// isType reports whether the index of an IndexExpr is a type argument.
func (n *callNamer) isType(e ast.Expr) bool {
	if n.info == nil {
		return false
	}
	tv, ok := n.info.Types[e]
	return ok && tv.IsType()
}

// builtinName returns the name of a predeclared or unsafe function called by fun.
func builtinName(fun ast.Expr) string {
	switch e := fun.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		if pkg, ok := e.X.(*ast.Ident); ok {
			return pkg.Name + "." + e.Sel.Name
		}
		return e.Sel.Name
	case *ast.ParenExpr:
		return builtinName(e.X)
	}
	return ""
}

// calleeIdent returns the identifier naming the callee, if any.
func calleeIdent(fun ast.Expr) *ast.Ident {
	switch e := fun.(type) {
	case *ast.Ident:
		return e
	case *ast.SelectorExpr:
		return e.Sel
	case *ast.ParenExpr:
		return calleeIdent(e.X)
	}
	return nil
}
